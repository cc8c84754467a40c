package handler

import (
	"bytes"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/skypro1111/tcp-http-server/internal/protocol"
)

const metricsContentType = "text/plain; version=" + expfmt.TextVersion + "; charset=utf-8"

// MetricsHandler exposes a Prometheus gatherer in the text exposition format.
type MetricsHandler struct {
	path     string
	gatherer prometheus.Gatherer
}

// NewMetricsHandler serves g on GET path.
func NewMetricsHandler(path string, g prometheus.Gatherer) *MetricsHandler {
	return &MetricsHandler{path: path, gatherer: g}
}

func (h *MetricsHandler) CanHandle(req *protocol.Request) bool {
	return req.Path() == h.path && req.Method() == "GET"
}

// Serve gathers and encodes every metric family.
func (h *MetricsHandler) Serve(*protocol.Request) (*protocol.Response, error) {
	families, err := h.gatherer.Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}

	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return nil, fmt.Errorf("failed to encode metric family %s: %w", mf.GetName(), err)
		}
	}

	return OK(metricsContentType, buf.Bytes()), nil
}

func (h *MetricsHandler) Handle(req *protocol.Request) *protocol.Response {
	resp, err := h.Serve(req)
	if err != nil {
		return builtinPage(500)
	}
	return resp
}
