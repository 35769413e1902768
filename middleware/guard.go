package middleware

import (
	"context"
	"net/http"
	"strings"

	widgetAuth "github.com/MrEthical07/widgetAuth"
)

// Verifier checks widget credentials. *widgetAuth.Engine implements it.
type Verifier interface {
	Verify(ctx context.Context, token string) (*widgetAuth.AuthResult, error)
}

// Guard rejects requests without a valid widget credential. The verified
// result is available to next through [widgetAuth.AuthResultFromContext].
func Guard(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				WriteRejection(w, widgetAuth.ErrEngineNotReady)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteRejection(w, widgetAuth.ErrInvalidToken)
				return
			}

			res, err := v.Verify(r.Context(), token)
			if err != nil {
				WriteRejection(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(widgetAuth.WithAuthResult(r.Context(), res)))
		})
	}
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(r *http.Request) (string, bool) {
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
