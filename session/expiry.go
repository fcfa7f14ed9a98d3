package session

import (
	"context"
	"time"

	"github.com/jrsteele09/go-session-client/authmodel"
)

// Run checks the stored expiry every check interval until ctx is done. It is
// the only place a session ends purely because time passed.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.checkInterval)
	defer ticker.Stop()

	c.log.Debug().Dur("interval", c.checkInterval).Msg("expiry watcher started")
	for {
		select {
		case <-ctx.Done():
			c.log.Debug().Msg("expiry watcher stopped")
			return
		case <-ticker.C:
			c.CheckExpiry(ctx)
		}
	}
}

// CheckExpiry runs one expiry check and reports whether the session was
// ended. With proactive renewal enabled a renewal is attempted first.
func (c *Controller) CheckExpiry(ctx context.Context) bool {
	if !c.IsAuthenticated() {
		return false
	}
	if !c.store.IsExpired(ctx, c.expiryBuffer) {
		return false
	}

	if c.proactiveRenewal && c.State().Credential.HasRenewalToken() {
		if _, err := c.Renew(ctx); err == nil {
			c.log.Info().Msg("renewed session ahead of expiry")
			return false
		}
		// Renew already cleared the session and published renewal_failed
		return true
	}

	c.log.Info().Msg("session expired")
	c.clearLocal(ctx, authmodel.EventExpired, msgSessionExpired)
	return true
}
