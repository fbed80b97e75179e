package middleware

import (
	"context"

	"github.com/angelmondragon/packfinderz-order-progress/internal/orders"
	pkgerrors "github.com/angelmondragon/packfinderz-order-progress/pkg/errors"
)

type contextKey string

const ctxViewer contextKey = "viewer"

// ViewerFromContext returns the authenticated caller seeded by Auth.
func ViewerFromContext(ctx context.Context) (orders.Viewer, bool) {
	if ctx == nil {
		return orders.Viewer{}, false
	}
	v, ok := ctx.Value(ctxViewer).(orders.Viewer)
	return v, ok
}

// WithViewer injects the caller into the context.
func WithViewer(ctx context.Context, viewer orders.Viewer) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxViewer, viewer)
}

// RequireViewer is ViewerFromContext for handlers mounted behind Auth.
func RequireViewer(ctx context.Context) (orders.Viewer, error) {
	viewer, ok := ViewerFromContext(ctx)
	if !ok {
		return orders.Viewer{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "viewer context missing")
	}
	return viewer, nil
}
