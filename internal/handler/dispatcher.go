package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/skypro1111/tcp-http-server/internal/metrics"
	"github.com/skypro1111/tcp-http-server/internal/protocol"
)

var errNoResponse = errors.New("handler returned no response")

// Dispatcher hands each request to the first handler that can handle it,
// falling back to the static files. Handler failures and panics become 500
// responses.
type Dispatcher struct {
	handlers []Handler
	static   *StaticFiles
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewDispatcher creates a dispatcher over a copy of handlers. static may be
// nil, in which case unmatched requests get the built-in 404 page.
func NewDispatcher(logger *slog.Logger, handlers []Handler, static *StaticFiles, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		handlers: slices.Clone(handlers),
		static:   static,
		logger:   logger,
		metrics:  m,
	}
}

// Dispatch returns the response for req. Exactly one handler runs.
func (d *Dispatcher) Dispatch(req *protocol.Request) (resp *protocol.Response) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.RecordHandlerPanic()
			d.logger.Error("Handler panicked",
				slog.String("method", req.Method()),
				slog.String("path", req.Path()),
				slog.String("panic", fmt.Sprint(r)),
			)
			resp = d.static.InternalServerError()
		}
	}()

	for _, h := range d.handlers {
		if h.CanHandle(req) {
			return d.invoke(h, req)
		}
	}
	return d.static.Handle(req)
}

func (d *Dispatcher) invoke(h Handler, req *protocol.Request) *protocol.Response {
	var (
		resp *protocol.Response
		err  error
	)
	if eh, ok := h.(ErrorHandler); ok {
		resp, err = eh.Serve(req)
	} else {
		resp = h.Handle(req)
	}
	if err == nil && resp == nil {
		err = errNoResponse
	}

	if err != nil {
		d.logger.Error("Handler failed",
			slog.String("method", req.Method()),
			slog.String("path", req.Path()),
			slog.String("error", err.Error()),
		)
		return d.static.InternalServerError()
	}
	return resp
}
