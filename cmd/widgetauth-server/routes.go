package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	widgetAuth "github.com/MrEthical07/widgetAuth"
	"github.com/MrEthical07/widgetAuth/clientid"
	"github.com/MrEthical07/widgetAuth/metrics/export/prometheus"
	"github.com/MrEthical07/widgetAuth/middleware"
)

const maxBodyBytes = 16 << 10

// Per-session budget for /v1/widget/me, enforced as an ad-hoc layer.
const (
	meLayer  = "me"
	meWindow = time.Minute
	meMax    = 120
)

type server struct {
	engine *widgetAuth.Engine
}

type sessionRequest struct {
	APIKey string `json:"api_key"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	SessionID string    `json:"session_id"`
	PartnerID string    `json:"partner_id"`
}

type meResponse struct {
	SessionID   string    `json:"session_id"`
	PartnerID   string    `json:"partner_id"`
	UserID      string    `json:"user_id,omitempty"`
	Permissions []string  `json:"permissions"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type accountRequest struct {
	Email  string `json:"email"`
	UserID string `json:"user_id"`
}

type healthResponse struct {
	Status         string `json:"status"`
	StoreLatencyMS int64  `json:"store_latency_ms"`
}

func newHandler(engine *widgetAuth.Engine) http.Handler {
	s := &server{engine: engine}
	guard := middleware.Guard(engine)
	meLimit := middleware.RateLimit(engine, perSession(meLayer, meWindow, meMax))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/widget/session", s.openSession)
	mux.Handle("DELETE /v1/widget/session", guard(http.HandlerFunc(s.closeSession)))
	mux.Handle("GET /v1/widget/me", guard(meLimit(http.HandlerFunc(s.me))))
	mux.Handle("POST /v1/widget/accounts", guard(http.HandlerFunc(s.createAccount)))
	mux.HandleFunc("GET /healthz", s.health)
	mux.Handle("GET /metrics", prometheus.NewPrometheusExporter(engine).Handler())
	return mux
}

// perSession keys an ad-hoc layer by the verified session. It must run
// behind Guard.
func perSession(layer string, window time.Duration, max int) func(*http.Request) []widgetAuth.RateCheck {
	return func(r *http.Request) []widgetAuth.RateCheck {
		res, ok := widgetAuth.AuthResultFromContext(r.Context())
		if !ok {
			return nil
		}
		return []widgetAuth.RateCheck{{
			Layer:      layer,
			Identifier: "session:" + res.SessionID,
			Window:     window,
			Max:        max,
		}}
	}
}

func (s *server) openSession(w http.ResponseWriter, r *http.Request) {
	var body sessionRequest
	if err := decodeBody(r, &body); err != nil {
		middleware.WriteRejection(w, widgetAuth.ErrInvalidRequest)
		return
	}

	res, err := s.engine.Authenticate(r.Context(), widgetAuth.AuthenticateRequest{
		APIKey:  body.APIKey,
		Origin:  r.Header.Get("Origin"),
		Request: clientid.FromHTTP(r),
	})
	if err != nil {
		middleware.WriteRejection(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, tokenResponse{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		SessionID: res.SessionID,
		PartnerID: res.PartnerID,
	})
}

func (s *server) closeSession(w http.ResponseWriter, r *http.Request) {
	res, _ := widgetAuth.AuthResultFromContext(r.Context())
	if err := s.engine.InvalidateSession(r.Context(), res.SessionID); err != nil {
		middleware.WriteRejection(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) me(w http.ResponseWriter, r *http.Request) {
	res, _ := widgetAuth.AuthResultFromContext(r.Context())
	perms := res.Permissions
	if perms == nil {
		perms = []string{}
	}
	middleware.WriteJSON(w, http.StatusOK, meResponse{
		SessionID:   res.SessionID,
		PartnerID:   res.PartnerID,
		UserID:      res.UserID,
		Permissions: perms,
		ExpiresAt:   res.ExpiresAt,
	})
}

// createAccount runs the account-creation gate and, if it passes, binds the
// new user to the calling session. Persisting the account is the partner's
// concern.
func (s *server) createAccount(w http.ResponseWriter, r *http.Request) {
	res, _ := widgetAuth.AuthResultFromContext(r.Context())

	var body accountRequest
	if err := decodeBody(r, &body); err != nil || body.UserID == "" || body.Email == "" {
		middleware.WriteRejection(w, widgetAuth.ErrInvalidRequest)
		return
	}

	decision, err := s.engine.CheckAccountCreation(r.Context(), widgetAuth.AccountCreationRequest{
		PartnerID: res.PartnerID,
		SessionID: res.SessionID,
		Email:     body.Email,
		Request:   clientid.FromHTTP(r),
	})
	if err != nil {
		middleware.WriteRejection(w, err)
		return
	}
	middleware.SetRateHeaders(w, decision)
	if err := decision.Err(); err != nil {
		middleware.WriteRejection(w, err)
		return
	}

	token, _ := middleware.BearerToken(r)
	bound, err := s.engine.BindUser(r.Context(), token, body.UserID)
	if err != nil {
		middleware.WriteRejection(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, tokenResponse{
		Token:     bound.Token,
		ExpiresAt: bound.ExpiresAt,
		SessionID: bound.SessionID,
		PartnerID: bound.PartnerID,
	})
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	h := s.engine.Health(r.Context())
	if !h.StoreAvailable {
		middleware.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, healthResponse{
		Status:         "ok",
		StoreLatencyMS: h.StoreLatency.Milliseconds(),
	})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data")
	}
	return nil
}
