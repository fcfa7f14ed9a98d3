package session

import "context"

type contextKey string

const controllerKey contextKey = "session_controller"

// NewContext returns a copy of ctx carrying c
func NewContext(ctx context.Context, c *Controller) context.Context {
	return context.WithValue(ctx, controllerKey, c)
}

// FromContext returns the controller stored in ctx, if any
func FromContext(ctx context.Context) (*Controller, bool) {
	c, ok := ctx.Value(controllerKey).(*Controller)
	return c, ok
}
