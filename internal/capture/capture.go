// Package capture records microphone audio. A Source produces fixed-size
// chunks into a bounded queue; a collector goroutine drains it. Stopping
// never blocks longer than the configured join timeout.
package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"mivta/internal/config"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNotRecording is returned by Stop without a running session.
	ErrNotRecording = errors.New("capture: not recording")
	// ErrAlreadyRecording is returned by Start while a session runs.
	ErrAlreadyRecording = errors.New("capture: already recording")
	// ErrUnavailable is returned when the binary has no audio backend.
	ErrUnavailable = errors.New("capture: built without audio support (rebuild with -tags portaudio)")
)

// Source produces audio chunks until ctx is done. emit must not retain the
// slice after returning.
type Source interface {
	Run(ctx context.Context, emit func(chunk []float32)) error
}

// Result is what a recording session produced.
type Result struct {
	Audio    []float32
	Chunks   int
	Dropped  int64
	TimedOut bool // collector missed the join deadline
	Err      error
}

// Recorder runs one capture session at a time.
type Recorder struct {
	src         Source
	queueSize   int
	joinTimeout time.Duration
	logger      *logrus.Logger

	mu     sync.Mutex
	active *session
}

type session struct {
	cancel    context.CancelFunc
	queue     chan []float32
	collected chan struct{}

	mu      sync.Mutex
	chunks  [][]float32
	srcErr  error
	dropped atomic.Int64
}

// New returns a recorder over src.
func New(src Source, queueSize int, joinTimeout time.Duration, logger *logrus.Logger) *Recorder {
	return &Recorder{
		src:         src,
		queueSize:   max(1, queueSize),
		joinTimeout: joinTimeout,
		logger:      logger,
	}
}

// NewFromConfig uses the capture section of cfg.
func NewFromConfig(cfg *config.Config, src Source, logger *logrus.Logger) *Recorder {
	return New(src, cfg.Capture.QueueSize, cfg.JoinTimeout(), logger)
}

// Recording reports whether a session is running.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Start begins a session. The source stops when ctx is done or Stop is
// called.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return ErrAlreadyRecording
	}
	sctx, cancel := context.WithCancel(ctx)
	s := &session{
		cancel:    cancel,
		queue:     make(chan []float32, r.queueSize),
		collected: make(chan struct{}),
	}
	r.active = s

	go func() {
		err := r.src.Run(sctx, func(chunk []float32) {
			cp := make([]float32, len(chunk))
			copy(cp, chunk)
			select {
			case s.queue <- cp:
			default:
				s.dropped.Add(1)
				r.logger.Warn("capture queue full, dropping chunk")
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Errorf("capture source: %v", err)
			s.mu.Lock()
			s.srcErr = err
			s.mu.Unlock()
		}
		close(s.queue)
	}()

	go func() {
		defer close(s.collected)
		for chunk := range s.queue {
			s.mu.Lock()
			s.chunks = append(s.chunks, chunk)
			s.mu.Unlock()
		}
	}()
	return nil
}

// Stop ends the session and returns the concatenated audio collected so far.
func (r *Recorder) Stop() (Result, error) {
	r.mu.Lock()
	s := r.active
	r.active = nil
	r.mu.Unlock()
	if s == nil {
		return Result{}, ErrNotRecording
	}

	s.cancel()
	res := Result{}
	select {
	case <-s.collected:
	case <-time.After(r.joinTimeout):
		res.TimedOut = true
		r.logger.Warnf("capture collector did not stop within %s, using partial audio", r.joinTimeout)
	}

	s.mu.Lock()
	chunks := s.chunks
	res.Err = s.srcErr
	s.mu.Unlock()

	n := 0
	for _, c := range chunks {
		n += len(c)
	}
	res.Audio = make([]float32, 0, n)
	for _, c := range chunks {
		res.Audio = append(res.Audio, c...)
	}
	res.Chunks = len(chunks)
	res.Dropped = s.dropped.Load()
	return res, nil
}

// Record captures for d (or until ctx is done) and returns the result.
func (r *Recorder) Record(ctx context.Context, d time.Duration) (Result, error) {
	if err := r.Start(ctx); err != nil {
		return Result{}, err
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
	return r.Stop()
}

// Device describes an input device.
type Device struct {
	Index     int     `json:"index"`
	Name      string  `json:"name"`
	Channels  int     `json:"channels"`
	LatencyMs float64 `json:"latency_ms"`
	Default   bool    `json:"default"`
}
