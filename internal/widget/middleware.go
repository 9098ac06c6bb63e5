package widget

import (
	"context"
	"net/http"

	"Storefront/internal/visitor"
)

const visitorCookie = "sf_visitor"

type ctxKey string

const visitorKey ctxKey = "visitor"

func VisitorFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(visitorKey).(string)
	return v, ok
}

// WithVisitor resolves the caller's visitor identity from the signed
// cookie, minting a fresh one when the cookie is absent or invalid.
// Identity resolution never fails a request.
func WithVisitor(tokens *visitor.TokenMaker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""

			if c, err := r.Cookie(visitorCookie); err == nil {
				if claims, err := tokens.Parse(c.Value); err == nil {
					id = claims.VisitorID
				}
			}

			if id == "" {
				id = visitor.NewID()
				if token, err := tokens.New(id, visitor.DefaultTTL); err == nil {
					http.SetCookie(w, &http.Cookie{
						Name:     visitorCookie,
						Value:    token,
						Path:     "/",
						MaxAge:   int(visitor.DefaultTTL.Seconds()),
						HttpOnly: true,
						SameSite: http.SameSiteLaxMode,
					})
				}
			}

			ctx := context.WithValue(r.Context(), visitorKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
