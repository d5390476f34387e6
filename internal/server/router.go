package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"underwriting/internal/rule"
)

// RuleSource is the part of the rule store probed by the health check.
type RuleSource interface {
	Document(ctx context.Context, category rule.Category) (rule.Document, error)
}

type healthResponse struct {
	Status   string                   `json:"status"`
	Versions map[rule.Category]string `json:"versions,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

// OpsRouter serves the operational endpoints of the service.
type OpsRouter struct {
	rules   RuleSource
	metrics http.Handler
}

// NewOpsRouter creates the router. metrics may be nil to disable /metrics.
func NewOpsRouter(rules RuleSource, metrics http.Handler) *OpsRouter {
	return &OpsRouter{rules: rules, metrics: metrics}
}

// Mux registers:
// - GET /healthz reports whether every rule category can be read
// - GET /metrics exposes Prometheus metrics
func (o *OpsRouter) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", o.healthHandler)
	if o.metrics != nil {
		mux.Handle("GET /metrics", o.metrics)
	}
	return mux
}

func (o *OpsRouter) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Versions: make(map[rule.Category]string, len(rule.Categories))}
	status := http.StatusOK
	for _, category := range rule.Categories {
		doc, err := o.rules.Document(r.Context(), category)
		if err != nil {
			slog.Warn("Health check failed", "category", category, "error", err)
			resp = healthResponse{Status: "unavailable", Error: err.Error()}
			status = http.StatusServiceUnavailable
			break
		}
		resp.Versions[category] = doc.Version
	}

	body, err := json.Marshal(resp)
	if err != nil {
		slog.Warn("Unable to marshal health response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
