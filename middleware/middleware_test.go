package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	widgetAuth "github.com/MrEthical07/widgetAuth"
)

type fakeVerifier struct {
	res   *widgetAuth.AuthResult
	err   error
	token string
}

func (f *fakeVerifier) Verify(_ context.Context, token string) (*widgetAuth.AuthResult, error) {
	f.token = token
	return f.res, f.err
}

type fakeLimiter struct {
	decision widgetAuth.RateDecision
	err      error
	got      []widgetAuth.RateCheck
}

func (f *fakeLimiter) CheckLimits(_ context.Context, checks []widgetAuth.RateCheck) (widgetAuth.RateDecision, error) {
	f.got = checks
	return f.decision, f.err
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestGuardInjectsAuthResult(t *testing.T) {
	v := &fakeVerifier{res: &widgetAuth.AuthResult{SessionID: "ws_1", PartnerID: "p1"}}

	var seen *widgetAuth.AuthResult
	h := Guard(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = widgetAuth.AuthResultFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/widget/me", nil)
	req.Header.Set("Authorization", "Bearer wgt_abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if v.token != "wgt_abc" {
		t.Fatalf("expected token to be passed through, got %q", v.token)
	}
	if seen == nil || seen.SessionID != "ws_1" {
		t.Fatalf("expected auth result in context, got %+v", seen)
	}
}

func TestGuardRejections(t *testing.T) {
	cases := []struct {
		name   string
		header string
		err    error
		status int
		reason string
	}{
		{name: "missing header", header: "", status: http.StatusUnauthorized, reason: widgetAuth.ReasonInvalidToken},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized, reason: widgetAuth.ReasonInvalidToken},
		{name: "revoked session", header: "Bearer t", err: widgetAuth.ErrSessionInvalid, status: http.StatusUnauthorized, reason: widgetAuth.ReasonSessionInvalid},
		{name: "store outage", header: "bearer t", err: widgetAuth.ErrUnavailable, status: http.StatusServiceUnavailable, reason: widgetAuth.ReasonUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := &fakeVerifier{err: tc.err, res: &widgetAuth.AuthResult{}}
			h := Guard(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("next must not run on rejection")
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			if body := decodeBody(t, rec); body.Error != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason, body.Error)
			}
		})
	}
}

func TestWriteRejectionRateLimited(t *testing.T) {
	rec := httptest.NewRecorder()
	d := widgetAuth.RateDecision{Layer: widgetAuth.LayerEmail, RetryAfter: 90 * time.Second}
	WriteRejection(rec, d.Err())

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "90" {
		t.Fatalf("expected Retry-After 90, got %q", got)
	}
	body := decodeBody(t, rec)
	if body.Error != widgetAuth.ReasonRateLimited || body.Layer != widgetAuth.LayerEmail {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestStatusFor(t *testing.T) {
	for reason, want := range map[string]int{
		widgetAuth.ReasonInvalidCredential: http.StatusUnauthorized,
		widgetAuth.ReasonOriginNotAllowed:  http.StatusForbidden,
		widgetAuth.ReasonPartnerInactive:   http.StatusForbidden,
		widgetAuth.ReasonInvalidRequest:    http.StatusBadRequest,
		widgetAuth.ReasonUnavailable:       http.StatusServiceUnavailable,
		"something_new":                    http.StatusServiceUnavailable,
	} {
		if got := StatusFor(reason); got != want {
			t.Fatalf("StatusFor(%q) = %d, want %d", reason, got, want)
		}
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	reset := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	l := &fakeLimiter{decision: widgetAuth.RateDecision{Allowed: true, Remaining: 4, ResetAt: reset}}
	checks := func(r *http.Request) []widgetAuth.RateCheck {
		return []widgetAuth.RateCheck{{Layer: "lookup", Identifier: r.URL.Path, Window: time.Hour, Max: 5}}
	}

	called := false
	h := RateLimit(l, checks)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/lookup", nil))
	if !called {
		t.Fatal("allowed request must reach next")
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "4" {
		t.Fatalf("unexpected remaining header %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
	if len(l.got) != 1 || l.got[0].Identifier != "/v1/lookup" {
		t.Fatalf("unexpected checks %+v", l.got)
	}

	called = false
	l.decision = widgetAuth.RateDecision{Allowed: false, Layer: "lookup", RetryAfter: time.Minute, ResetAt: reset}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/lookup", nil))
	if called {
		t.Fatal("denied request must not reach next")
	}
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Header().Get("Retry-After"))
	}
}
