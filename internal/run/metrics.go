package run

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
)

type metrics struct {
	jobs         atomic.Int64
	segments     atomic.Int64
	corrections  atomic.Int64
	dropped      atomic.Int64
	hooksSent    atomic.Int64
	hooksDropped atomic.Int64
}

func (m *metrics) addJob(segments, corrections int) {
	m.jobs.Add(1)
	m.segments.Add(int64(segments))
	m.corrections.Add(int64(corrections))
}

func (m *metrics) incDropped()      { m.dropped.Add(1) }
func (m *metrics) incHooksDropped() { m.hooksDropped.Add(1) }
func (m *metrics) addHooks(n int)   { m.hooksSent.Add(int64(n)) }

func (m *metrics) write(w io.Writer) {
	fmt.Fprintf(w, "mivta_jobs_total %d\n", m.jobs.Load())
	fmt.Fprintf(w, "mivta_segments_total %d\n", m.segments.Load())
	fmt.Fprintf(w, "mivta_corrections_total %d\n", m.corrections.Load())
	fmt.Fprintf(w, "mivta_jobs_dropped_total %d\n", m.dropped.Load())
	fmt.Fprintf(w, "mivta_hooks_sent_total %d\n", m.hooksSent.Load())
	fmt.Fprintf(w, "mivta_hooks_dropped_total %d\n", m.hooksDropped.Load())
}

func (s *Server) metricsServe(ctxDone <-chan struct{}, addr string, logger interface {
	Infof(string, ...any)
	Warnf(string, ...any)
}) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		s.metrics.write(w)
	})
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		<-ctxDone
		_ = server.Close()
	}()
	logger.Infof("metrics listening on http://%s/metrics", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warnf("metrics server: %v", err)
	}
}
