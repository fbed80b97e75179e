package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/packfinderz-order-progress/api/responses"
	"github.com/angelmondragon/packfinderz-order-progress/internal/orders"
	pkgAuth "github.com/angelmondragon/packfinderz-order-progress/pkg/auth"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/config"
	pkgerrors "github.com/angelmondragon/packfinderz-order-progress/pkg/errors"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the viewer.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithViewer(r.Context(), orders.Viewer{
				UserID:  claims.UserID,
				StoreID: claims.StoreID,
				Role:    claims.Role,
			})

			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.UserID.String())
				ctx = logg.WithActorRole(ctx, string(claims.Role))
				if claims.StoreID != nil {
					ctx = logg.WithStoreID(ctx, claims.StoreID.String())
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
