package server

import (
	"errors"
	"log/slog"
	"net"
	"time"
)

const maxAcceptDelay = time.Second

// acceptLoop accepts connections while the server is running and hands each
// one to the worker pool. Accept errors after Stop are expected and not logged.
func (s *Server) acceptLoop() {
	var delay time.Duration

	for s.status.IsRunning() {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.status.IsRunning() {
				return
			}
			if errors.Is(err, net.ErrClosed) {
				s.logger.Error("Listener closed unexpectedly", slog.String("error", err.Error()))
				return
			}

			delay = nextAcceptDelay(delay)
			s.logger.Error("Failed to accept connection",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", delay),
			)
			time.Sleep(delay)
			continue
		}
		delay = 0

		s.submit(conn)
	}
}

func nextAcceptDelay(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	return min(2*d, maxAcceptDelay)
}
