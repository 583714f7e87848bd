package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"FlowRadar/internal/alerter"
	"FlowRadar/internal/model"
	"FlowRadar/internal/report"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// APIHandler holds the dependencies for API handlers.
type APIHandler struct {
	generator     alerter.Generator
	defaultWindow time.Duration
	latest        func() *report.Report
	renderer      report.TextRenderer
	now           func() time.Time
}

func newRouter(h *APIHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/report", h.reportHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/report/text", h.reportTextHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/report/latest", h.latestReportHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/__health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return r
}

// parseWindow reads ?start=&end= (RFC3339) or ?window= (duration) from the request.
func (h *APIHandler) parseWindow(r *http.Request) (model.TimeWindow, error) {
	q := r.URL.Query()
	start, end := q.Get("start"), q.Get("end")
	if start != "" || end != "" {
		if start == "" || end == "" {
			return model.TimeWindow{}, fmt.Errorf("start and end must be given together")
		}
		s, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return model.TimeWindow{}, fmt.Errorf("invalid start: %w", err)
		}
		e, err := time.Parse(time.RFC3339, end)
		if err != nil {
			return model.TimeWindow{}, fmt.Errorf("invalid end: %w", err)
		}
		return model.NewTimeWindow(s, e), nil
	}

	d := h.defaultWindow
	if v := q.Get("window"); v != "" {
		var err error
		if d, err = time.ParseDuration(v); err != nil {
			return model.TimeWindow{}, fmt.Errorf("invalid window: %w", err)
		}
	}
	return model.LastWindow(h.now(), d), nil
}

func (h *APIHandler) generate(w http.ResponseWriter, r *http.Request) (*report.Report, bool) {
	window, err := h.parseWindow(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	rep, err := h.generator.Generate(r.Context(), window)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, model.ErrInvalidWindow) {
			status = http.StatusBadRequest
		}
		http.Error(w, fmt.Sprintf("failed to generate report: %v", err), status)
		return nil, false
	}
	return rep, true
}

// reportHandler generates a report and returns it as JSON. Failed sections are
// listed in the body; the status stays 200 as long as a report was produced.
func (h *APIHandler) reportHandler(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.generate(w, r)
	if !ok {
		return
	}
	writeJSON(w, rep)
}

// reportTextHandler generates a report and returns the console rendering.
func (h *APIHandler) reportTextHandler(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.generate(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.renderer.Render(&buf, rep); err != nil {
		http.Error(w, fmt.Sprintf("failed to render report: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// latestReportHandler returns the report of the last alerter check.
func (h *APIHandler) latestReportHandler(w http.ResponseWriter, _ *http.Request) {
	var rep *report.Report
	if h.latest != nil {
		rep = h.latest()
	}
	if rep == nil {
		http.Error(w, "no report has been generated yet", http.StatusNotFound)
		return
	}
	writeJSON(w, rep)
}

func writeJSON(w http.ResponseWriter, v any) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(jsonBytes); err != nil {
		log.WithError(err).Debug("Failed to write response")
	}
}
