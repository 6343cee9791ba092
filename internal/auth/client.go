package auth

import (
	"context"
	"slices"

	"github.com/strefethen/anthem-hub-go/internal/apperrors"
)

type contextKey string

const clientKey contextKey = "authClient"

// Client is the authenticated caller of a request.
type Client struct {
	Sub       string
	Name      string
	Scope     Scope
	Receivers []string
}

func clientFromPayload(payload TokenPayload) Client {
	return Client{
		Sub:       payload.Sub,
		Name:      payload.ClientName,
		Scope:     payload.Scope,
		Receivers: payload.Receivers,
	}
}

// CanSee reports whether the grant covers receiver id.
func (c Client) CanSee(id string) bool {
	return len(c.Receivers) == 0 || slices.Contains(c.Receivers, id)
}

// CanControl reports whether the client may send commands to id.
func (c Client) CanControl(id string) bool {
	return c.Scope == ScopeControl && c.CanSee(id)
}

// WithClient stores an authenticated client in the context.
func WithClient(ctx context.Context, client Client) context.Context {
	return context.WithValue(ctx, clientKey, client)
}

// ClientFromContext returns the authenticated client, if present.
func ClientFromContext(ctx context.Context) (Client, bool) {
	if ctx == nil {
		return Client{}, false
	}
	client, ok := ctx.Value(clientKey).(Client)
	return client, ok
}

// Visible reports whether the caller may read receiver id. Requests
// without a client (auth disabled) see everything.
func Visible(ctx context.Context, id string) bool {
	client, ok := ClientFromContext(ctx)
	return !ok || client.CanSee(id)
}

// RequireControl fails with FORBIDDEN unless the caller may command
// receiver id.
func RequireControl(ctx context.Context, id string) error {
	client, ok := ClientFromContext(ctx)
	if !ok || client.CanControl(id) {
		return nil
	}
	return apperrors.NewForbiddenError("Token does not grant control of this receiver", map[string]any{
		"id":    id,
		"scope": string(client.Scope),
	})
}
