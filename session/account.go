package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-client/authmodel"
	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/pkg/errors"
)

// Activity event types recorded alongside the session events
const (
	ActivityEmailVerified authmodel.EventType = "email_verified"
)

// RequestPasswordReset asks the server to send a reset link. It does not
// touch the session.
func (c *Controller) RequestPasswordReset(ctx context.Context, email string) error {
	return errors.Wrap(c.api.RequestPasswordReset(ctx, email), "[session.RequestPasswordReset]")
}

// ConfirmPasswordReset sets a new password using a reset token
func (c *Controller) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	return errors.Wrap(c.api.ConfirmPasswordReset(ctx, token, newPassword), "[session.ConfirmPasswordReset]")
}

// VerifyEmail confirms an email verification token. When a session is active
// its identity is marked verified and an identity_updated event published.
func (c *Controller) VerifyEmail(ctx context.Context, token string) error {
	if err := c.api.VerifyEmail(ctx, token); err != nil {
		return errors.Wrap(err, "[session.VerifyEmail]")
	}

	persistCtx := context.WithoutCancel(ctx)
	c.commit(authmodel.EventIdentityUpdated, func(cur authmodel.State) (authmodel.State, bool) {
		if !cur.Authenticated() || cur.Identity.EmailVerified {
			return cur, false
		}
		cur.Identity.EmailVerified = true
		if err := c.store.Save(persistCtx, *cur.Credential, *cur.Identity); err != nil {
			c.log.Error().Err(err).Msg("failed to persist verified identity")
		}
		c.recordActivity(persistCtx, ActivityEmailVerified, cur.Identity.Email, "")
		return cur, true
	})
	return nil
}

// Activity returns the activity log of the current session, oldest first
func (c *Controller) Activity(ctx context.Context) ([]authmodel.ActivityEntry, error) {
	if !c.IsAuthenticated() {
		return nil, errors.Wrap(apperrors.ErrNotAuthenticated, "[session.Activity]")
	}
	return c.store.Activity(ctx), nil
}

// recordActivity must be called with commitMu held
func (c *Controller) recordActivity(ctx context.Context, eventType authmodel.EventType, email, detail string) {
	entry := authmodel.ActivityEntry{
		ID:     uuid.NewString(),
		Type:   eventType,
		At:     c.nowTime().UTC(),
		Email:  email,
		Detail: detail,
	}
	if err := c.store.AppendActivity(ctx, entry, c.activityLimit); err != nil {
		c.log.Warn().Err(err).Str("type", string(eventType)).Msg("failed to record activity")
	}
}
