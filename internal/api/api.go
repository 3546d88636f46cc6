// Package api serves the pair price engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"pairprice/internal/apierr"
	"pairprice/internal/engine"
	"pairprice/internal/estimate"
	"pairprice/internal/provider/ratelimit"
)

const PairPricePath = "/api/v1/get_pair_price"

// PairPricer answers pair price queries.
type PairPricer interface {
	GetPairPrice(ctx context.Context, q engine.Query) (estimate.PairPrice, error)
}

// statser is implemented by pricers that can report their load.
type statser interface {
	Stats() engine.Stats
}

type health struct {
	Status string        `json:"status"`
	Engine *engine.Stats `json:"engine,omitempty"`
}

type Server struct {
	pricer  PairPricer
	keys    *KeySet
	limiter *ratelimit.Keyed
	timeout time.Duration
	log     *slog.Logger
}

// New wires a server. A nil limiter disables rate limiting; timeout
// bounds how long a request waits for its price.
func New(pricer PairPricer, keys *KeySet, limiter *ratelimit.Keyed, timeout time.Duration, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if keys == nil {
		keys = NewKeySet()
	}
	return &Server{pricer: pricer, keys: keys, limiter: limiter, timeout: timeout, log: log}
}

// Handler returns the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET "+PairPricePath, s.rateLimit(s.authorize(http.HandlerFunc(s.handlePairPrice))))

	return withJSONHeaders(withGzip(s.recoverPanic(s.accessLog(limitBody(mux)))))
}

func (s *Server) handlePairPrice(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	price, err := s.pricer.GetPairPrice(ctx, q)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.writeError(w, r, http.StatusGatewayTimeout, "request timed out")
			return
		}
		s.log.Error("getPairPrice failed",
			slog.String("a", q.A),
			slog.String("b", q.B),
			slog.String("error", err.Error()))
		s.writeError(w, r, apierr.Status(err), apierr.Message(err))
		return
	}
	writeJSON(w, http.StatusOK, price)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := health{Status: "ok"}
	if st, ok := s.pricer.(statser); ok {
		stats := st.Stats()
		body.Engine = &stats
	}
	writeJSON(w, http.StatusOK, body)
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.log.Warn("request rejected",
		slog.Int("status", status),
		slog.String("path", r.URL.Path),
		slog.String("error", msg))
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
