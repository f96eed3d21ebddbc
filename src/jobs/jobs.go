package jobs

import (
	"context"
	"time"

	"github.com/PatchWorkCreations/iriseup-foundation/src/logging"
	"github.com/rs/zerolog"
)

/*
 * Background tasks that can be canceled and waited on during shutdown: the
 * HTTP server, the perf collector, the dev object store.
 */

type Job struct {
	Name   string
	Ctx    context.Context
	Logger zerolog.Logger
	cancel func()
	done   chan struct{}
	err    error
}

func New(name string) *Job {
	logger := logging.With().Str("job", name).Logger()
	ctx, cancel := context.WithCancel(context.Background())
	ctx = logging.AttachLoggerToContext(&logger, ctx)
	return &Job{
		Name:   name,
		Ctx:    ctx,
		Logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Runs f in the background as a new Job. The job finishes when f returns;
// errors and panics are logged, and f's error is kept for Err.
func Start(name string, f func(ctx context.Context) error) *Job {
	job := New(name)
	go func() {
		defer job.Finish()
		defer logging.LogPanics(&job.Logger)

		job.Logger.Debug().Msg("job started")
		if err := f(job.Ctx); err != nil {
			job.err = err
			job.Logger.Error().Err(err).Msg("job failed")
			return
		}
		job.Logger.Debug().Msg("job finished")
	}()
	return job
}

// The error the job's function returned. Only meaningful once Finished is
// closed.
func (j *Job) Err() error {
	select {
	case <-j.done:
		return j.err
	default:
		return nil
	}
}

// Sends a cancel signal to the Job by canceling its context.
func (j *Job) Cancel() {
	j.cancel()
}

func (j *Job) Canceled() <-chan struct{} {
	return j.Ctx.Done()
}

// Marks the Job as finished. Called by the job itself.
func (j *Job) Finish() *Job {
	close(j.done)
	return j
}

func (j *Job) Finished() <-chan struct{} {
	return j.done
}

type Jobs []*Job

// Cancels all jobs and waits for them to finish, up to timeout. Returns the
// names of the jobs that did not finish in time.
func (jobs Jobs) CancelAndWait(timeout time.Duration) []string {
	allDoneChan := make(chan struct{})
	for _, job := range jobs {
		job.Cancel()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	go func() {
		for _, job := range jobs {
			<-job.Finished()
		}
		close(allDoneChan)
	}()

	select {
	case <-timer.C:
		return jobs.ListUnfinished()
	case <-allDoneChan:
		return nil
	}
}

func (jobs Jobs) ListUnfinished() []string {
	unfinished := []string{}
	for _, job := range jobs {
		select {
		case <-job.Finished():
			continue
		default:
			unfinished = append(unfinished, job.Name)
		}
	}
	return unfinished
}
