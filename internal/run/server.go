package run

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"mivta/internal/config"
	"mivta/internal/control"
	"mivta/internal/hook"
	"mivta/internal/pipeline"

	"github.com/sirupsen/logrus"
)

// Server owns the pipeline and serves correction jobs, hooks, metrics and
// control requests.
type Server struct {
	cfgMu sync.RWMutex
	cfg   *config.Config

	logger    *logrus.Logger
	pipe      *pipeline.Pipeline
	hook      *hook.Runner
	startedAt time.Time

	historyMu sync.Mutex
	history   []control.HistoryEntry

	metrics metrics
	jobs    chan job
	hookCh  chan hook.Job

	wg sync.WaitGroup
}

type job struct {
	req   control.Request
	reply chan control.CorrectResponse
}

// Serve runs the daemon until interrupted.
func Serve(cfg *config.Config, logger *logrus.Logger) error {
	if err := config.MustStatePaths(cfg); err != nil {
		return err
	}
	if err := os.WriteFile(cfg.Paths.PidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(cfg.Paths.PidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warnf("remove pid file: %v", err)
		}
	}()
	if err := os.Remove(cfg.Paths.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Debugf("remove stale socket: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipe, err := pipeline.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := pipe.Close(); err != nil {
			logger.Warnf("close store: %v", err)
		}
	}()

	srv := NewServer(cfg, logger, pipe)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		select {
		case s := <-sigCh:
			logger.Infof("received signal %s, shutting down", s)
			cancel()
		case <-ctx.Done():
		}
	}()
	return srv.Run(ctx)
}

// NewServer builds a server over an open pipeline.
func NewServer(cfg *config.Config, logger *logrus.Logger, pipe *pipeline.Pipeline) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		pipe:      pipe,
		hook:      hook.NewRunner(logger),
		startedAt: time.Now(),
		history:   make([]control.HistoryEntry, 0, cfg.Daemon.HistoryTail),
		jobs:      make(chan job, max(1, cfg.Daemon.QueueSize)),
		hookCh:    make(chan hook.Job, 16),
	}
}

// Run listens on the control socket and processes jobs until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.config()
	ln, err := net.Listen("unix", cfg.Paths.SocketPath)
	if err != nil {
		return fmt.Errorf("control listen: %w", err)
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	s.wg.Add(2)
	go s.worker(ctx)
	go s.hookWorker(ctx)

	if cfg.Metrics.Enabled {
		go s.metricsServe(ctx.Done(), cfg.Metrics.Addr, s.logger)
	}

	s.logger.Infof("mivta daemon listening on %s", cfg.Paths.SocketPath)
	s.controlLoop(ctx, ln)
	s.wg.Wait()
	return nil
}

func (s *Server) config() *config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

func (s *Server) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.jobs:
			j.reply <- s.process(ctx, j.req)
		}
	}
}

// enqueue hands j to the worker without blocking.
func (s *Server) enqueue(j job) bool {
	select {
	case s.jobs <- j:
		return true
	default:
		s.metrics.incDropped()
		s.logger.Warn("job queue full, rejecting request")
		return false
	}
}

func (s *Server) process(ctx context.Context, req control.Request) control.CorrectResponse {
	if req.Path == "" {
		return control.CorrectResponse{Message: "missing path"}
	}
	threshold := s.pipe.Threshold(req.Threshold)
	report, out, err := s.pipe.CorrectFile(ctx, req.Path, req.Output, threshold)
	if err != nil {
		s.logger.Errorf("correct %s: %v", req.Path, err)
		return control.CorrectResponse{Message: err.Error()}
	}
	s.metrics.addJob(report.TotalSegments, report.CorrectedCount)

	entry := control.HistoryEntry{
		Input:     req.Path,
		Output:    out,
		Summary:   report.Summary(),
		Corrected: report.CorrectedCount,
		Timestamp: time.Now(),
	}
	s.recordHistory(entry)

	hj := hook.Job{
		Input:     req.Path,
		Output:    out,
		Summary:   entry.Summary,
		Corrected: report.CorrectedCount,
		Total:     report.TotalSegments,
		Timestamp: entry.Timestamp,
	}
	select {
	case s.hookCh <- hj:
	default:
		s.metrics.incHooksDropped()
		s.logger.Warn("hook queue full, dropping job")
	}
	return control.CorrectResponse{OK: true, Message: entry.Summary, Output: out, Report: report}
}

func (s *Server) recordHistory(entry control.HistoryEntry) {
	cfg := s.config()
	s.historyMu.Lock()
	s.history = append(s.history, entry)
	if tail := cfg.Daemon.HistoryTail; tail > 0 && len(s.history) > tail {
		s.history = s.history[len(s.history)-tail:]
	}
	s.historyMu.Unlock()

	f, err := os.OpenFile(cfg.Paths.HistoryPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		s.logger.Warnf("open history: %v", err)
		return
	}
	if _, err := fmt.Fprintf(f, "%s\t%s\t%s\t%s\n", entry.Timestamp.Format(time.RFC3339), entry.Input, entry.Output, entry.Summary); err != nil {
		s.logger.Warnf("write history: %v", err)
	}
	_ = f.Close()
}

func (s *Server) copyHistory() []control.HistoryEntry {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	out := make([]control.HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Server) controlLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Errorf("control accept: %v", err)
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() {
		if err := conn.Close(); err != nil && ctx.Err() == nil {
			s.logger.Warnf("control connection close: %v", err)
		}
	}()
	sc := bufio.NewScanner(conn)
	if !sc.Scan() {
		return
	}
	var req control.Request
	if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
		_ = json.NewEncoder(conn).Encode(control.SimpleResponse{Message: "bad request"})
		return
	}
	enc := json.NewEncoder(conn)
	switch req.Op {
	case "status":
		_ = enc.Encode(s.status(ctx))
	case "health":
		_ = enc.Encode(control.SimpleResponse{OK: true, Message: "ok"})
	case "correct":
		_ = enc.Encode(s.submit(ctx, req))
	case "reload":
		_ = enc.Encode(s.reload())
	default:
		_ = enc.Encode(control.SimpleResponse{Message: fmt.Sprintf("unknown op %q", req.Op)})
	}
}

func (s *Server) submit(ctx context.Context, req control.Request) control.CorrectResponse {
	j := job{req: req, reply: make(chan control.CorrectResponse, 1)}
	if !s.enqueue(j) {
		return control.CorrectResponse{Message: "busy"}
	}
	select {
	case resp := <-j.reply:
		return resp
	case <-ctx.Done():
		return control.CorrectResponse{Message: "shutting down"}
	}
}

func (s *Server) status(ctx context.Context) control.Status {
	snap := s.pipe.Model.Snapshot()
	st := control.Status{
		Running:    true,
		UptimeSec:  time.Since(s.startedAt).Seconds(),
		ModelReady: snap.Trained(),
		Threshold:  snap.Threshold(),
		Jobs:       s.metrics.jobs.Load(),
		History:    s.copyHistory(),
	}
	if progress, err := s.pipe.Store.Status(ctx); err == nil {
		st.Trained = progress.Trained
		st.Total = progress.Total
		st.Percentage = progress.Percentage
	} else {
		s.logger.Warnf("store status: %v", err)
	}
	return st
}

// reload re-reads the config file and applies the threshold and hooks.
// Paths and pipeline parameters need a restart.
func (s *Server) reload() control.SimpleResponse {
	cur := s.config()
	next, err := config.Load(cur.Paths.ConfigPath)
	if err != nil {
		return control.SimpleResponse{Message: err.Error()}
	}
	next.Paths = cur.Paths
	s.pipe.Model.SetThreshold(next.Model.SimilarityThreshold)
	s.cfgMu.Lock()
	s.cfg = next
	s.cfgMu.Unlock()
	msg := fmt.Sprintf("threshold %.2f, %d hooks", next.Model.SimilarityThreshold, len(next.Hooks))
	s.logger.Infof("config reloaded: %s", msg)
	return control.SimpleResponse{OK: true, Message: msg}
}
