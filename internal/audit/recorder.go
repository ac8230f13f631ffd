// Package audit records login bookkeeping off the request path.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/authhub/authhub/internal/identity"
)

const (
	defaultBuffer = 256
	writeTimeout  = 5 * time.Second
)

type job struct {
	userID string
	device string
}

// Recorder writes last-login updates through the directory on a background
// worker. Enqueueing never blocks and never fails the caller: a full buffer
// drops the update with a log line, and worker failures only log. The session
// is already granted by the time anything lands here.
type Recorder struct {
	dir    identity.Directory
	logger *slog.Logger
	jobs   chan job
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// NewRecorder starts the worker goroutine.
func NewRecorder(log *slog.Logger, dir identity.Directory) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	r := &Recorder{
		dir:    dir,
		logger: log.With(slog.String("service", "audit")),
		jobs:   make(chan job, defaultBuffer),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Record enqueues a last-login update for the user.
func (r *Recorder) Record(userID, device string) {
	select {
	case r.jobs <- job{userID: userID, device: device}:
	default:
		r.logger.Warn("audit queue full, dropping login record",
			slog.String("user_id", userID),
			slog.String("device", device),
		)
	}
}

// Close stops accepting work and drains the queue.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.jobs)
	})
	r.wg.Wait()
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for j := range r.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := r.dir.RecordLogin(ctx, j.userID, j.device)
		cancel()
		if err != nil {
			r.logger.Warn("record login failed",
				slog.String("user_id", j.userID),
				slog.String("device", j.device),
				slog.Any("error", err),
			)
		}
	}
}
