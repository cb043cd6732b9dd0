package run

import "context"

func (s *Server) hookWorker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.hookCh:
			s.metrics.addHooks(s.hook.Dispatch(ctx, s.config(), job))
		}
	}
}
