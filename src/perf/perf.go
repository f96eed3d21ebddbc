package perf

import (
	"context"
	"time"
)

/*
Timing for a single unit of work: an HTTP request, a CLI ingest, a delete.
Blocks nest; EndBlock closes the innermost open one. A nil *RequestPerf is
valid and records nothing, so code can time itself without checking whether
anyone is listening.
*/
type RequestPerf struct {
	Route  string
	Path   string // the path actually matched
	Method string
	Start  time.Time
	End    time.Time
	Blocks []PerfBlock
}

func MakeNewRequestPerf(route string, method string, path string) *RequestPerf {
	return &RequestPerf{
		Start:  time.Now(),
		Route:  route,
		Path:   path,
		Method: method,
	}
}

func (rp *RequestPerf) EndRequest() {
	if rp == nil {
		return
	}
	for rp.EndBlock() {
	}
	rp.End = time.Now()
}

func (rp *RequestPerf) Checkpoint(category, description string) {
	if rp == nil {
		return
	}
	now := time.Now()
	rp.Blocks = append(rp.Blocks, PerfBlock{
		Start:       now,
		End:         now,
		Category:    category,
		Description: description,
	})
}

func (rp *RequestPerf) StartBlock(category, description string) {
	if rp == nil {
		return
	}
	rp.Blocks = append(rp.Blocks, PerfBlock{
		Start:       time.Now(),
		Category:    category,
		Description: description,
	})
}

func (rp *RequestPerf) EndBlock() bool {
	if rp == nil {
		return false
	}
	for i := len(rp.Blocks) - 1; i >= 0; i -= 1 {
		if rp.Blocks[i].End.IsZero() {
			rp.Blocks[i].End = time.Now()
			return true
		}
	}
	return false
}

func (rp *RequestPerf) Duration() time.Duration {
	if rp == nil || rp.End.IsZero() {
		return 0
	}
	return rp.End.Sub(rp.Start)
}

func (rp *RequestPerf) MsFromStart(block *PerfBlock) float64 {
	return float64(block.Start.Sub(rp.Start).Nanoseconds()) / 1000 / 1000
}

type PerfBlock struct {
	Start       time.Time
	End         time.Time
	Category    string
	Description string
}

func (pb *PerfBlock) Duration() time.Duration {
	return pb.End.Sub(pb.Start)
}

func (pb *PerfBlock) DurationMs() float64 {
	return float64(pb.Duration().Nanoseconds()) / 1000 / 1000
}

type perfContextKey struct{}

func AttachPerf(ctx context.Context, rp *RequestPerf) context.Context {
	return context.WithValue(ctx, perfContextKey{}, rp)
}

// Returns nil if ctx carries no perf; all methods accept that.
func ExtractPerf(ctx context.Context) *RequestPerf {
	rp, _ := ctx.Value(perfContextKey{}).(*RequestPerf)
	return rp
}

type PerfStorage struct {
	AllRequests []RequestPerf
}

// Keeps the most recent finished runs in memory.
type PerfCollector struct {
	In          chan<- RequestPerf
	Done        <-chan struct{}
	RequestCopy chan<- (chan<- PerfStorage)
}

const DefaultPerfHistory = 1000

func RunPerfCollector(ctx context.Context, maxHistory int) *PerfCollector {
	if maxHistory <= 0 {
		maxHistory = DefaultPerfHistory
	}

	in := make(chan RequestPerf)
	done := make(chan struct{})
	requestCopy := make(chan (chan<- PerfStorage))

	var storage PerfStorage

	go func() {
		defer close(done)

		for {
			select {
			case perf := <-in:
				storage.AllRequests = append(storage.AllRequests, perf)
				if over := len(storage.AllRequests) - maxHistory; over > 0 {
					storage.AllRequests = append([]RequestPerf(nil), storage.AllRequests[over:]...)
				}
			case resultChan := <-requestCopy:
				resultChan <- PerfStorage{
					AllRequests: append([]RequestPerf(nil), storage.AllRequests...),
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return &PerfCollector{
		In:          in,
		Done:        done,
		RequestCopy: requestCopy,
	}
}

func (perfCollector *PerfCollector) SubmitRun(run *RequestPerf) {
	if perfCollector == nil || run == nil {
		return
	}
	select {
	case perfCollector.In <- *run:
	case <-perfCollector.Done:
	}
}

func (perfCollector *PerfCollector) GetPerfCopy() *PerfStorage {
	resultChan := make(chan PerfStorage)
	select {
	case perfCollector.RequestCopy <- resultChan:
	case <-perfCollector.Done:
		return &PerfStorage{}
	}
	perfStorageCopy := <-resultChan
	return &perfStorageCopy
}
