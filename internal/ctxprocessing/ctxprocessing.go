package ctxprocessing

import (
	"context"
	"net/http"

	"fknsrs.biz/p/ytmentions/internal/processing"
)

// context registration

var clientKey int

func WithClient(ctx context.Context, c *processing.Client) context.Context {
	return context.WithValue(ctx, &clientKey, c)
}

func GetClient(ctx context.Context) *processing.Client {
	if v := ctx.Value(&clientKey); v != nil {
		return v.(*processing.Client)
	}

	return nil
}

// middleware

func Register(c *processing.Client) func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		next(rw, r.WithContext(WithClient(r.Context(), c)))
	}
}
