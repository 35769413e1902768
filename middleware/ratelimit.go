package middleware

import (
	"context"
	"net/http"
	"strconv"

	widgetAuth "github.com/MrEthical07/widgetAuth"
)

// LimitChecker evaluates caller-defined rate-limit layers.
// *widgetAuth.Engine implements it.
type LimitChecker interface {
	CheckLimits(ctx context.Context, checks []widgetAuth.RateCheck) (widgetAuth.RateDecision, error)
}

// RateLimit gates next with the layers returned by checks. A nil or empty
// layer list lets the request through unchecked.
func RateLimit(l LimitChecker, checks func(r *http.Request) []widgetAuth.RateCheck) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			layers := checks(r)
			if len(layers) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			decision, err := l.CheckLimits(r.Context(), layers)
			if err != nil {
				WriteRejection(w, err)
				return
			}
			SetRateHeaders(w, decision)
			if !decision.Allowed {
				WriteRejection(w, decision.Err())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SetRateHeaders exposes the remaining budget and reset time of d.
func SetRateHeaders(w http.ResponseWriter, d widgetAuth.RateDecision) {
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	if !d.ResetAt.IsZero() {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	}
}
