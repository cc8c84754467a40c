package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/skypro1111/tcp-http-server/internal/metrics"
	"github.com/skypro1111/tcp-http-server/internal/protocol"
)

type dispatchFunc func(req *protocol.Request) *protocol.Response

func (f dispatchFunc) Dispatch(req *protocol.Request) *protocol.Response { return f(req) }

// echo answers with the method, path and sorted query pairs of the request.
var echo = dispatchFunc(func(req *protocol.Request) *protocol.Response {
	params := req.QueryParams()
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var sb strings.Builder
	sb.WriteString(req.Method() + " " + req.Path())
	for _, k := range keys {
		sb.WriteString("\n" + k + "=" + params[k])
	}
	body := []byte(sb.String())

	return protocol.NewResponseBuilder().
		Header("Content-Type", protocol.MimeText).
		Body(body).
		Build()
})

// syncBuffer is a log sink safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startTestServer(t *testing.T, cfg Config, d Dispatcher, logger *slog.Logger, m *metrics.Metrics) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := newServer(ln, cfg, d, logger, m)
	srv.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Stop(ctx)
	})
	return srv
}

func roundTrip(t *testing.T, addr net.Addr, raw string) string {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	_, err = conn.Write([]byte(raw))
	require.NoError(t, err)

	resp, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(resp)
}

func TestServerEchoRoundTrip(t *testing.T) {
	srv := startTestServer(t, Config{WorkerPoolSize: 4, QueueSize: 16}, echo, testLogger(), nil)

	resp := roundTrip(t, srv.Addr(), "GET /search?q=hello+world&special=%21%40%23%24&flag HTTP/1.1\r\nHost: test\r\n\r\n")

	require.Equal(t, "HTTP/1.1 200 OK\r\n"+
		"Content-Type: text/plain; charset=UTF-8\r\n"+
		"\r\n"+
		"GET /search\nflag=\nq=hello world\nspecial=!@#$", resp)
}

func TestServerConcurrentClients(t *testing.T) {
	srv := startTestServer(t, Config{WorkerPoolSize: 4, QueueSize: 64}, echo, testLogger(), nil)

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := net.Dial("tcp", srv.Addr().String())
			if err != nil {
				errs <- err
				return
			}
			defer conn.Close()
			conn.SetDeadline(time.Now().Add(5 * time.Second))
			conn.Write([]byte("POST /items?id=7 HTTP/1.1\r\nContent-Length: 0\r\n\r\n"))
			b, err := io.ReadAll(conn)
			if err != nil {
				errs <- err
				return
			}
			if !strings.HasSuffix(string(b), "POST /items\nid=7") {
				errs <- errors.New("unexpected response: " + string(b))
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestServerParseErrors(t *testing.T) {
	srv := startTestServer(t, Config{WorkerPoolSize: 2, QueueSize: 4, MaxHeaderBytes: 1024, MaxBodyBytes: 16}, echo, testLogger(), nil)

	tests := []struct {
		name   string
		raw    string
		status string
	}{
		{"malformed request line", "BROKEN\r\n\r\n", "HTTP/1.1 400 Bad Request\r\n"},
		{"header too large", "GET / HTTP/1.1\r\nX-Big: " + strings.Repeat("x", 2048) + "\r\n\r\n", "HTTP/1.1 431 Request Header Fields Too Large\r\n"},
		{"body too large", "POST / HTTP/1.1\r\nContent-Length: 17\r\n\r\n", "HTTP/1.1 413 Content Too Large\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := roundTrip(t, srv.Addr(), tt.raw)
			require.True(t, strings.HasPrefix(resp, tt.status), "got %q", resp)
		})
	}
}

func TestServerSilentOnImmediateClose(t *testing.T) {
	srv := startTestServer(t, Config{WorkerPoolSize: 1, QueueSize: 1}, echo, testLogger(), nil)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	b, err := io.ReadAll(conn)
	require.NoError(t, err)
	require.Empty(t, b)
	conn.Close()
}

func TestServerStopUnblocksAcceptWithoutErrors(t *testing.T) {
	var logs syncBuffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelError}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := newServer(ln, Config{WorkerPoolSize: 2, QueueSize: 2}, echo, logger, nil)
	srv.Start()

	// Let the accept loop block.
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, srv.Stop(context.Background()))
	require.False(t, srv.IsRunning())

	select {
	case <-srv.Done():
	default:
		t.Fatal("Expected Done to be closed after Stop")
	}
	require.Empty(t, logs.String())

	_, err = net.Dial("tcp", ln.Addr().String())
	require.Error(t, err, "listener must be closed")

	require.NoError(t, srv.Stop(context.Background()), "Stop is idempotent")
}

func TestServerStopBeforeStart(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := newServer(ln, Config{WorkerPoolSize: 1, QueueSize: 1}, echo, testLogger(), nil)

	require.NoError(t, srv.Stop(context.Background()))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServerQueueFullAnswers503(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	blocking := dispatchFunc(func(req *protocol.Request) *protocol.Response {
		entered <- struct{}{}
		<-release
		return echo(req)
	})
	srv := startTestServer(t, Config{WorkerPoolSize: 1, QueueSize: 1}, blocking, testLogger(), m)

	dial := func() net.Conn {
		conn, err := net.Dial("tcp", srv.Addr().String())
		require.NoError(t, err)
		conn.SetDeadline(time.Now().Add(5 * time.Second))
		_, err = conn.Write([]byte("GET /slow HTTP/1.1\r\n\r\n"))
		require.NoError(t, err)
		return conn
	}

	first := dial()
	defer first.Close()
	<-entered

	second := dial()
	defer second.Close()
	waitFor(t, func() bool { return testutil.ToFloat64(m.ConnectionsAccepted) == 2 })

	third := dial()
	defer third.Close()
	b, err := io.ReadAll(third)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(b), "HTTP/1.1 503 Service Unavailable\r\n"), "got %q", b)
	require.Equal(t, float64(1), testutil.ToFloat64(m.ConnectionsRejected))

	close(release)
	for _, conn := range []net.Conn{first, second} {
		b, err := io.ReadAll(conn)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(string(b), "HTTP/1.1 200 OK\r\n"), "got %q", b)
	}
}

func TestServerClosesRejectedConnectionsWhenBacklogged(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	blocking := dispatchFunc(func(req *protocol.Request) *protocol.Response {
		entered <- struct{}{}
		<-release
		return echo(req)
	})
	srv := startTestServer(t, Config{WorkerPoolSize: 1, QueueSize: 1}, blocking, testLogger(), m)
	defer close(release)

	dial := func(raw string) net.Conn {
		conn, err := net.Dial("tcp", srv.Addr().String())
		require.NoError(t, err)
		conn.SetDeadline(time.Now().Add(5 * time.Second))
		if raw != "" {
			_, err = conn.Write([]byte(raw))
			require.NoError(t, err)
		}
		return conn
	}

	first := dial("GET /slow HTTP/1.1\r\n\r\n")
	defer first.Close()
	<-entered

	second := dial("GET /slow HTTP/1.1\r\n\r\n")
	defer second.Close()
	waitFor(t, func() bool { return testutil.ToFloat64(m.ConnectionsAccepted) == 2 })

	// Occupy every rejection writer.
	for i := 0; i < cap(srv.rejectSlots); i++ {
		srv.rejectSlots <- struct{}{}
	}

	// Nothing is sent so the close arrives as a clean FIN.
	dropped := dial("")
	defer dropped.Close()
	b, err := io.ReadAll(dropped)
	require.NoError(t, err)
	require.Empty(t, b, "a backlogged server closes without answering")
	require.Equal(t, float64(1), testutil.ToFloat64(m.ConnectionsRejected))

	for i := 0; i < cap(srv.rejectSlots); i++ {
		<-srv.rejectSlots
	}

	answered := dial("")
	defer answered.Close()
	b, err = io.ReadAll(answered)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(b), "HTTP/1.1 503 Service Unavailable\r\n"), "got %q", b)
	require.Equal(t, float64(2), testutil.ToFloat64(m.ConnectionsRejected))
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestServerRecordsConnectionSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { tp.Shutdown(context.Background()) })

	srv := startTestServer(t, Config{WorkerPoolSize: 2, QueueSize: 4, TracerProvider: tp}, echo, testLogger(), nil)

	tests := []struct {
		name   string
		raw    string
		status int64
		code   codes.Code
	}{
		{name: "served", raw: "GET /items?id=7 HTTP/1.1\r\n\r\n", status: 200, code: codes.Unset},
		{name: "malformed", raw: "BROKEN\r\n\r\n", status: 400, code: codes.Error},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roundTrip(t, srv.Addr(), tt.raw)
			waitFor(t, func() bool { return len(recorder.Ended()) == i+1 })

			span := recorder.Ended()[i]
			if span.Name() != "http.connection" {
				t.Errorf("Expected span name 'http.connection', got '%s'", span.Name())
			}
			if span.SpanKind() != trace.SpanKindServer {
				t.Errorf("Expected server span kind, got %v", span.SpanKind())
			}

			status, ok := spanAttr(span, "http.status_code")
			require.True(t, ok, "http.status_code attribute missing")
			if status.AsInt64() != tt.status {
				t.Errorf("Expected http.status_code %d, got %d", tt.status, status.AsInt64())
			}
			if span.Status().Code != tt.code {
				t.Errorf("Expected span status %v, got %v", tt.code, span.Status().Code)
			}
		})
	}

	malformed := recorder.Ended()[1]
	reason, ok := spanAttr(malformed, "http.reject_reason")
	require.True(t, ok)
	require.Equal(t, "malformed", reason.AsString())
	require.NotEmpty(t, malformed.Events(), "the parse error is recorded as an event")
}

func TestServerStopInterruptsIdleConnection(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	srv := startTestServer(t, Config{WorkerPoolSize: 1, QueueSize: 1}, echo, testLogger(), m)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	waitFor(t, func() bool { return testutil.ToFloat64(m.ActiveConnections) == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = srv.Stop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	waitFor(t, func() bool { return testutil.ToFloat64(m.ActiveConnections) == 0 })
}

func TestServerGracePeriodForcesShutdown(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	srv := startTestServer(t, Config{WorkerPoolSize: 1, QueueSize: 1, ShutdownGracePeriod: 50 * time.Millisecond}, echo, testLogger(), m)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	waitFor(t, func() bool { return testutil.ToFloat64(m.ActiveConnections) == 1 })

	require.ErrorIs(t, srv.Stop(context.Background()), ErrForcedShutdown)
}

func TestNewServerRejectsInvalidPort(t *testing.T) {
	_, err := NewServer(Config{Port: 0, BindAddress: "127.0.0.1"}, echo, testLogger(), nil)
	require.ErrorIs(t, err, ErrInvalidPort)

	_, err = NewServer(Config{Port: 70000, BindAddress: "127.0.0.1"}, echo, testLogger(), nil)
	require.ErrorIs(t, err, ErrInvalidPort)
}
