package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skypro1111/tcp-http-server/internal/metrics"
	"github.com/skypro1111/tcp-http-server/internal/protocol"
)

const (
	tracerName = "github.com/skypro1111/tcp-http-server/internal/server"

	// rejectWriteTimeout bounds writing the 503 answer to a rejected connection.
	rejectWriteTimeout = time.Second

	// maxPendingRejects caps the goroutines writing 503 answers. Past it,
	// rejected connections are closed without an answer.
	maxPendingRejects = 16
)

// Dispatcher turns a parsed request into a response.
type Dispatcher interface {
	Dispatch(req *protocol.Request) *protocol.Response
}

// Config holds the listener and worker settings.
type Config struct {
	Port                int
	BindAddress         string
	WorkerPoolSize      int
	QueueSize           int
	ShutdownGracePeriod time.Duration
	MaxHeaderBytes      int
	MaxBodyBytes        int64

	// TracerProvider creates the per-connection spans. Nil means the
	// global provider.
	TracerProvider trace.TracerProvider
}

// Server accepts TCP connections and serves one HTTP request per connection.
// It is bound on construction, runs after Start and stops for good on Stop.
type Server struct {
	listener   net.Listener
	status     Status
	pool       *WorkerPool
	dispatcher Dispatcher
	parser     protocol.Parser
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer

	rejectSlots chan struct{}

	runOnce sync.Once
	done    chan struct{}

	// drainCtx is cancelled when a Stop caller gives up waiting.
	drainCtx    context.Context
	cancelDrain context.CancelFunc
	drainErr    error
}

// NewServer validates the port and binds the listening socket. m may be nil.
func NewServer(cfg Config, d Dispatcher, logger *slog.Logger, m *metrics.Metrics) (*Server, error) {
	port, err := NewPort(cfg.Port)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(cfg.BindAddress, strconv.Itoa(port.Int()))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	return newServer(listener, cfg, d, logger, m), nil
}

func newServer(listener net.Listener, cfg Config, d Dispatcher, logger *slog.Logger, m *metrics.Metrics) *Server {
	drainCtx, cancelDrain := context.WithCancel(context.Background())

	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &Server{
		listener: listener,
		pool: NewWorkerPool(logger, PoolConfig{
			Workers:     cfg.WorkerPoolSize,
			QueueSize:   cfg.QueueSize,
			GracePeriod: cfg.ShutdownGracePeriod,
		}, m),
		dispatcher: d,
		parser: protocol.Parser{
			MaxHeaderBytes: cfg.MaxHeaderBytes,
			MaxBodyBytes:   cfg.MaxBodyBytes,
		},
		logger:      logger,
		metrics:     m,
		tracer:      tp.Tracer(tracerName),
		rejectSlots: make(chan struct{}, maxPendingRejects),
		done:        make(chan struct{}),
		drainCtx:    drainCtx,
		cancelDrain: cancelDrain,
	}
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// IsRunning reports whether Stop has not been called yet.
func (s *Server) IsRunning() bool { return s.status.IsRunning() }

// Start runs the accept loop in the background. Calls after the first are no-ops.
func (s *Server) Start() {
	s.runOnce.Do(func() {
		s.logger.Info("HTTP server started",
			slog.String("address", s.listener.Addr().String()),
			slog.Int("workers", s.pool.workers),
		)
		go s.run()
	})
}

// Done is closed when the accept loop has exited and the worker pool has
// shut down.
func (s *Server) Done() <-chan struct{} { return s.done }

// Stop stops accepting connections and waits for the worker pool to drain.
// If ctx ends first, running tasks are cancelled and ctx.Err() is returned
// once they exit. Stop may be called more than once.
func (s *Server) Stop(ctx context.Context) error {
	if s.status.Stop() {
		s.logger.Info("Stopping HTTP server...")
		if err := s.listener.Close(); err != nil {
			s.logger.Warn("Error closing listener", slog.String("error", err.Error()))
		}
	}

	// A server that never started still has to drain its pool.
	s.runOnce.Do(func() { go s.run() })

	stop := context.AfterFunc(ctx, s.cancelDrain)
	defer stop()

	<-s.done

	if errors.Is(s.drainErr, context.Canceled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return s.drainErr
}

func (s *Server) run() {
	defer close(s.done)

	s.acceptLoop()

	s.drainErr = s.pool.Shutdown(s.drainCtx)
	if s.drainErr != nil {
		s.logger.Warn("Worker pool shutdown was forced", slog.String("error", s.drainErr.Error()))
	}
	s.logger.Info("HTTP server stopped")
}

// submit queues conn for a worker, answering 503 when the queue is full.
func (s *Server) submit(conn net.Conn) {
	s.metrics.RecordConnectionAccepted()

	err := s.pool.Submit(func(ctx context.Context) {
		s.serveConn(ctx, conn)
	})
	if err == nil {
		return
	}

	s.metrics.RecordConnectionRejected()
	s.logger.Warn("Rejecting connection",
		slog.String("remote_addr", conn.RemoteAddr().String()),
		slog.String("error", err.Error()),
	)

	select {
	case s.rejectSlots <- struct{}{}:
		go func() {
			defer func() { <-s.rejectSlots }()
			s.reject(conn)
		}()
	default:
		s.logger.Debug("Too many pending rejections, closing without an answer",
			slog.String("remote_addr", conn.RemoteAddr().String()),
		)
		conn.Close()
	}
}

func (s *Server) reject(conn net.Conn) {
	c := NewConnection(conn)
	defer c.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(rejectWriteTimeout)); err != nil {
		return
	}
	resp := errorResponse(503)
	if _, err := resp.WriteTo(c.Writer()); err != nil {
		s.logger.Debug("Failed to write 503 response",
			slog.String("remote_addr", conn.RemoteAddr().String()),
			slog.String("error", err.Error()),
		)
		return
	}
	c.Linger()
}

// serveConn processes exactly one request on conn and releases it.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	s.metrics.ConnectionStarted()
	defer s.metrics.ConnectionFinished()

	// A forced shutdown unblocks any pending read or write.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	remoteAddr := conn.RemoteAddr().String()
	_, span := s.tracer.Start(ctx, "http.connection",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("net.peer.addr", remoteAddr)),
	)
	defer span.End()

	c := NewConnection(conn)
	defer func() {
		if err := c.Close(); err != nil {
			s.logger.Debug("Error closing connection",
				slog.String("remote_addr", remoteAddr),
				slog.String("error", err.Error()),
			)
		}
	}()

	if err := s.process(c, span); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		if isClientGone(err) {
			s.logger.Debug("Client went away",
				slog.String("remote_addr", remoteAddr),
				slog.String("error", err.Error()),
			)
			return
		}
		s.logger.Error("Failed to process connection",
			slog.String("remote_addr", remoteAddr),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Server) process(c *Connection, span trace.Span) error {
	req, err := s.parser.Parse(c.Reader())
	if err != nil {
		return s.rejectRequest(c, span, err)
	}

	start := time.Now()
	span.SetAttributes(
		attribute.String("http.method", req.Method()),
		attribute.String("http.target", req.Path()),
	)
	s.logger.Debug("Received request",
		slog.String("method", req.Method()),
		slog.String("path", req.Path()),
	)

	resp := s.dispatcher.Dispatch(req)
	if err := s.write(c, resp); err != nil {
		return err
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode()))
	s.metrics.RecordRequest(req.Method(), resp.StatusCode(), time.Since(start).Seconds())
	return nil
}

// rejectRequest answers a request the parser refused. A connection closed
// before any byte arrived gets no answer.
func (s *Server) rejectRequest(c *Connection, span trace.Span, err error) error {
	if errors.Is(err, io.EOF) {
		s.logger.Debug("Connection closed before a request was sent",
			slog.String("remote_addr", c.RemoteAddr().String()),
		)
		return nil
	}

	var code int
	var reason string
	switch {
	case errors.Is(err, protocol.ErrHeaderTooLarge):
		code, reason = 431, "header_too_large"
	case errors.Is(err, protocol.ErrBodyTooLarge):
		code, reason = 413, "body_too_large"
	case errors.Is(err, protocol.ErrMalformedRequest):
		code, reason = 400, "malformed"
	default:
		return err
	}

	s.metrics.RecordParseError(reason)
	span.SetAttributes(
		attribute.Int("http.status_code", code),
		attribute.String("http.reject_reason", reason),
	)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.logger.Debug("Rejected request",
		slog.String("remote_addr", c.RemoteAddr().String()),
		slog.Int("status_code", code),
		slog.String("error", err.Error()),
	)
	if err := s.write(c, errorResponse(code)); err != nil {
		return err
	}
	c.Linger()
	return nil
}

func (s *Server) write(c *Connection, resp *protocol.Response) error {
	if _, err := resp.WriteTo(c.Writer()); err != nil {
		return err
	}
	return c.Writer().Flush()
}

func errorResponse(code int) *protocol.Response {
	body := []byte(strconv.Itoa(code) + " " + protocol.StatusText(code))
	return protocol.NewResponseBuilder().
		Status(code).
		Header(protocol.HeaderContentType, protocol.MimeText).
		Header(protocol.HeaderContentLength, strconv.Itoa(len(body))).
		Header("Connection", "close").
		Body(body).
		Build()
}

// isClientGone reports errors caused by the peer or by a forced close rather
// than by the server.
func isClientGone(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
