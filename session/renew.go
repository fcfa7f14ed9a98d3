package session

import (
	"context"
	"fmt"
	"time"

	"github.com/jrsteele09/go-session-client/authapi"
	"github.com/jrsteele09/go-session-client/authmodel"
	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/pkg/errors"
)

const renewFlightKey = "renew"

// Renew exchanges the renewal token for a new credential and returns the new
// access token. Concurrent calls share one exchange. The exchange is not
// cancelled when a caller's ctx is; that caller just stops waiting.
//
// Without a renewal token the session is cleared and ErrNoRenewalToken is
// returned without a network call; an already anonymous session is left as
// it is. Any exchange failure clears the session;
// the error unwraps to ErrRenewalFailed or ErrNetwork.
func (c *Controller) Renew(ctx context.Context) (string, error) {
	flightCtx := context.WithoutCancel(ctx)
	ch := c.renewals.DoChan(renewFlightKey, func() (any, error) {
		return c.renew(flightCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Controller) renew(ctx context.Context) (string, error) {
	cur := c.State()
	if !cur.Authenticated() {
		// already ended, by a failed renewal or a logout
		return "", errors.Wrap(apperrors.ErrNoRenewalToken, "[session.Renew] no session")
	}
	if !cur.Credential.HasRenewalToken() {
		c.log.Info().Msg("renewal requested without a renewal token")
		c.clearLocal(ctx, authmodel.EventRenewalFailed, msgSessionEnded)
		return "", errors.Wrap(apperrors.ErrNoRenewalToken, "[session.Renew]")
	}
	used := cur.Credential.RenewalToken

	grant, err := c.exchange(ctx, used)
	if err != nil {
		c.log.Warn().Err(err).Msg("renewal failed, ending session")
		c.commit(authmodel.EventRenewalFailed, func(cur authmodel.State) (authmodel.State, bool) {
			if !cur.Credential.HasRenewalToken() || cur.Credential.RenewalToken != used {
				return cur, false
			}
			if err := c.store.Clear(ctx); err != nil {
				c.log.Error().Err(err).Msg("failed to clear credential store")
			}
			return authmodel.Anonymous(msgRenewalFailed), true
		})
		return "", errors.Wrap(classifyRenewal(err), "[session.Renew]")
	}

	var (
		token    string
		orphaned bool
	)
	c.commit(authmodel.EventRenewed, func(cur authmodel.State) (authmodel.State, bool) {
		if !cur.Authenticated() || cur.Credential.RenewalToken != used {
			// logged out or replaced while the exchange was running
			orphaned = true
			if cur.Authenticated() {
				token = cur.Credential.AccessToken
			}
			return cur, false
		}

		cred := grant.Credential
		if cred.RenewalToken == "" {
			cred.RenewalToken = used
		}
		identity := cur.Identity
		if grant.Identity != nil {
			identity = grant.Identity
		}
		if err := c.store.Save(ctx, cred, *identity); err != nil {
			c.log.Error().Err(err).Msg("failed to persist renewed credential")
		}
		c.recordActivity(ctx, authmodel.EventRenewed, identity.Email, "")

		token = cred.AccessToken
		return authmodel.State{
			Identity:   identity,
			Credential: &cred,
			Status:     authmodel.StatusAuthenticated,
		}, true
	})

	if orphaned && token == "" {
		return "", errors.Wrap(apperrors.ErrNotAuthenticated, "[session.Renew] session ended during renewal")
	}
	c.log.Debug().Bool("orphaned", orphaned).Msg("credential renewed")
	return token, nil
}

// exchange calls the renew endpoint, retrying transport failures when configured
func (c *Controller) exchange(ctx context.Context, renewalToken string) (*authapi.Grant, error) {
	for attempt := 0; ; attempt++ {
		grant, err := c.api.Renew(ctx, renewalToken)
		if err == nil {
			return grant, nil
		}
		if attempt >= c.renewRetries || !transient(err) {
			return nil, err
		}

		c.log.Debug().Err(err).Int("attempt", attempt+1).Msg("retrying renewal")
		timer := time.NewTimer(c.renewRetryDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, err
		}
	}
}

func transient(err error) bool {
	return apperrors.Is(err, apperrors.ErrNetwork) || apperrors.Is(err, apperrors.ErrTimeout)
}

func classifyRenewal(err error) error {
	switch {
	case apperrors.Is(err, apperrors.ErrRenewalFailed), apperrors.Is(err, apperrors.ErrNetwork):
		return err
	case apperrors.Is(err, apperrors.ErrTimeout):
		return fmt.Errorf("%w: %w", apperrors.ErrNetwork, err)
	}
	return fmt.Errorf("%w: %w", apperrors.ErrRenewalFailed, err)
}
