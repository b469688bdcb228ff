package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"pricequorum/internal/aggregate"
	"pricequorum/internal/connector"
	"pricequorum/internal/registry"
)

const maxBatchSymbols = 100

type handler struct {
	agg     *aggregate.Aggregator
	set     *registry.Set
	mode    string
	timeout time.Duration
	logger  zerolog.Logger
}

type errorResponse struct {
	Error  string                 `json:"error"`
	Symbol string                 `json:"symbol,omitempty"`
	Audit  []aggregate.AuditEntry `json:"audit,omitempty"`
}

type pricesResponse struct {
	Prices []aggregate.CanonicalPrice `json:"prices"`
	Errors map[string]errorResponse   `json:"errors,omitempty"`
}

type statusResponse struct {
	Mode       string               `json:"mode"`
	Connectors []connector.Status   `json:"connectors"`
	Cache      aggregate.CacheStats `json:"cache"`
}

func (h *handler) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /api/price", h.handlePrice)
	mux.HandleFunc("GET /api/prices", h.handlePrices)
	mux.HandleFunc("GET /api/status", h.handleStatus)
	mux.HandleFunc("POST /api/connectors/reset", h.handleReset)
	mux.HandleFunc("POST /api/cache/invalidate", h.handleInvalidate)
	return mux
}

func (h *handler) handlePrice(w http.ResponseWriter, r *http.Request) {
	sym := strings.TrimSpace(r.URL.Query().Get("symbol"))
	if sym == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing symbol query param"})
		return
	}
	ctx, cancel := h.requestContext(r)
	defer cancel()

	cp, err := h.agg.CanonicalPrice(ctx, sym)
	if err != nil {
		code, body := classify(sym, err)
		writeJSON(w, code, body)
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

// handlePrices resolves a CSV of symbols. Failures are reported per symbol
// and never fail the whole batch.
func (h *handler) handlePrices(w http.ResponseWriter, r *http.Request) {
	symbols := splitCSV(r.URL.Query().Get("symbols"))
	if len(symbols) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing symbols query param"})
		return
	}
	if len(symbols) > maxBatchSymbols {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "too many symbols (max 100)"})
		return
	}
	ctx, cancel := h.requestContext(r)
	defer cancel()

	resp := pricesResponse{Prices: []aggregate.CanonicalPrice{}}
	for _, sym := range symbols {
		cp, err := h.agg.CanonicalPrice(ctx, sym)
		if err != nil {
			if resp.Errors == nil {
				resp.Errors = map[string]errorResponse{}
			}
			_, body := classify(sym, err)
			resp.Errors[sym] = body
			continue
		}
		resp.Prices = append(resp.Prices, cp)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Mode:       h.mode,
		Connectors: h.agg.Status(),
		Cache:      h.agg.CacheStats(),
	})
}

// handleReset is the operator override that closes a breaker and lifts a
// geo-block on one connector.
func (h *handler) handleReset(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	c, ok := h.set.Lookup(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown connector"})
		return
	}
	c.Reset()
	h.logger.Warn().Str("connector", name).Msg("connector reset by operator")
	writeJSON(w, http.StatusOK, c.Status())
}

// handleInvalidate drops the cached price for ?symbol=, or the whole cache
// when no symbol is given.
func (h *handler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	sym := strings.TrimSpace(r.URL.Query().Get("symbol"))
	if err := h.agg.Invalidate(sym); err != nil {
		code, body := classify(sym, err)
		writeJSON(w, code, body)
		return
	}
	h.logger.Info().Str("symbol", sym).Msg("cache invalidated by operator")
	writeJSON(w, http.StatusOK, h.agg.CacheStats())
}

func (h *handler) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.timeout)
}

func classify(sym string, err error) (int, errorResponse) {
	var ins *aggregate.InsufficientSourcesError
	switch {
	case errors.Is(err, aggregate.ErrBadSymbol):
		return http.StatusBadRequest, errorResponse{Error: err.Error(), Symbol: sym}
	case errors.As(err, &ins):
		return http.StatusServiceUnavailable, errorResponse{Error: "no verified price available", Symbol: ins.Symbol, Audit: ins.Audit}
	}
	return http.StatusInternalServerError, errorResponse{Error: err.Error(), Symbol: sym}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
