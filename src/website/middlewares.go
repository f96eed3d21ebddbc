package website

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/PatchWorkCreations/iriseup-foundation/src/config"
	"github.com/PatchWorkCreations/iriseup-foundation/src/logging"
	"github.com/PatchWorkCreations/iriseup-foundation/src/media"
	"github.com/PatchWorkCreations/iriseup-foundation/src/oops"
	"github.com/PatchWorkCreations/iriseup-foundation/src/perf"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

func panicCatcherMiddleware(h Handler) Handler {
	return func(c *RequestContext) (res ResponseData) {
		defer func() {
			if recovered := recover(); recovered != nil {
				maybeError, ok := recovered.(error)
				var err error
				if ok {
					err = oops.New(maybeError, "request panicked")
				} else {
					err = oops.New(nil, "Recovered from panic with value: %v", recovered)
				}
				res = c.ErrorResponse(http.StatusInternalServerError, err)
			}
		}()

		return h(c)
	}
}

// Gives each request its own logger (tagged with a request id) and perf
// record, both reachable from the request context.
func trackRequestPerf(perfCollector *perf.PerfCollector) Middleware {
	return func(h Handler) Handler {
		return func(c *RequestContext) ResponseData {
			logger := c.Logger.With().
				Str("request_id", uuid.New().String()).
				Str("method", c.Req.Method).
				Str("path", c.Req.URL.Path).
				Logger()
			c.Logger = &logger

			c.Perf = perf.MakeNewRequestPerf(c.Route, c.Req.Method, c.Req.URL.Path)
			c.PerfCollector = perfCollector
			c.setContext(logging.AttachLoggerToContext(c.Logger, perf.AttachPerf(c.ctx, c.Perf)))

			var res ResponseData
			defer func() {
				c.Perf.EndRequest()
				log := c.Logger.Info()
				blockStack := make([]time.Time, 0)
				for i, block := range c.Perf.Blocks {
					for len(blockStack) > 0 && block.End.After(blockStack[len(blockStack)-1]) {
						blockStack = blockStack[:len(blockStack)-1]
					}
					log.Str(fmt.Sprintf("[%4.d] At %9.2fms", i, c.Perf.MsFromStart(&block)), fmt.Sprintf("%*.s[%s] %s (%.4fms)", len(blockStack)*2, "", block.Category, block.Description, block.DurationMs()))
					blockStack = append(blockStack, block.End)
				}
				log.Int("status", res.StatusCode)
				log.Msg(fmt.Sprintf("Served [%s] %s in %.4fms", c.Perf.Method, c.Perf.Path, float64(c.Perf.Duration().Nanoseconds())/1000/1000))
				perfCollector.SubmitRun(c.Perf)
			}()

			res = h(c)
			return res
		}
	}
}

func withMedia(svc *media.Service) Middleware {
	return func(h Handler) Handler {
		return func(c *RequestContext) ResponseData {
			c.Media = svc
			return h(c)
		}
	}
}

func logContextErrors(c *RequestContext, errs ...error) {
	for _, err := range errs {
		c.Logger.Error().Timestamp().Stack().Str("Requested", c.FullUrl()).Err(err).Msg("error occurred during request")
	}
}

func logContextErrorsMiddleware(h Handler) Handler {
	return func(c *RequestContext) ResponseData {
		res := h(c)
		logContextErrors(c, res.Errors...)
		return res
	}
}

const limiterTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Token buckets keyed by client IP. Idle entries are swept on access.
type ipRateLimiter struct {
	mu          sync.Mutex
	limit       rate.Limit
	burst       int
	entries     map[string]*limiterEntry
	lastCleanup time.Time
	now         func() time.Time
}

func newIPRateLimiter(cfg config.RateLimitConfig) *ipRateLimiter {
	return &ipRateLimiter{
		limit:       rate.Limit(cfg.PerSecond),
		burst:       max(cfg.Burst, 1),
		entries:     map[string]*limiterEntry{},
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

func (l *ipRateLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastCleanup) >= limiterTTL {
		for k, entry := range l.entries {
			if now.Sub(entry.lastSeen) > limiterTTL {
				delete(l.entries, k)
			}
		}
		l.lastCleanup = now
	}

	entry, ok := l.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// A non-positive rate disables limiting.
func rateLimitMiddleware(cfg config.RateLimitConfig) Middleware {
	if cfg.PerSecond <= 0 {
		return func(h Handler) Handler { return h }
	}
	limiter := newIPRateLimiter(cfg)
	return func(h Handler) Handler {
		return func(c *RequestContext) ResponseData {
			key := "unknown"
			if ip := c.GetIP(); ip != nil {
				key = ip.String()
			}
			if !limiter.allow(key) {
				res := c.ErrorResponse(http.StatusTooManyRequests, NewSafeError(nil, "too many uploads, slow down"))
				res.Errors = nil
				res.Header().Set("Retry-After", "1")
				return res
			}
			return h(c)
		}
	}
}
