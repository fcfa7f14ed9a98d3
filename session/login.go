package session

import (
	"context"

	"github.com/jrsteele09/go-session-client/authmodel"
	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/pkg/errors"
)

// Login authenticates with email and password. On failure the store is
// cleared before the error state is published, so no earlier session
// survives next to the failed one. Concurrent logins are not serialized;
// whichever completes last determines the session.
func (c *Controller) Login(ctx context.Context, email, password string) error {
	c.commit(authmodel.EventLoading, func(authmodel.State) (authmodel.State, bool) {
		return authmodel.State{Status: authmodel.StatusLoading}, true
	})

	grant, err := c.api.Login(ctx, email, password)
	if err == nil && grant.Identity == nil {
		err = errors.Wrap(apperrors.ErrBadResponse, "login response has no identity")
	}
	persistCtx := context.WithoutCancel(ctx)

	if err != nil {
		msg := loginErrorMessage(err)
		c.commit(authmodel.EventLoginFailed, func(authmodel.State) (authmodel.State, bool) {
			if clearErr := c.store.Clear(persistCtx); clearErr != nil {
				c.log.Error().Err(clearErr).Msg("failed to clear credential store after login failure")
			}
			return authmodel.Anonymous(msg), true
		})
		c.log.Info().Err(err).Msg("login failed")
		return errors.Wrap(err, "[session.Login]")
	}

	var saveErr error
	c.commit(authmodel.EventLogin, func(authmodel.State) (authmodel.State, bool) {
		if saveErr = c.store.Save(persistCtx, grant.Credential, *grant.Identity); saveErr != nil {
			if clearErr := c.store.Clear(persistCtx); clearErr != nil {
				c.log.Error().Err(clearErr).Msg("failed to clear credential store after save failure")
			}
			return authmodel.Anonymous(msgLoginFailed), true
		}
		c.recordActivity(persistCtx, authmodel.EventLogin, grant.Identity.Email, "")
		cred := grant.Credential
		return authmodel.State{
			Identity:   grant.Identity,
			Credential: &cred,
			Status:     authmodel.StatusAuthenticated,
		}, true
	})
	if saveErr != nil {
		return errors.Wrap(saveErr, "[session.Login] persist session")
	}

	c.log.Info().Str("user_id", grant.Identity.ID).Msg("logged in")
	return nil
}

func loginErrorMessage(err error) string {
	if msg := apperrors.ServerMessage(err); msg != "" {
		return msg
	}
	if apperrors.Is(err, apperrors.ErrNetwork) || apperrors.Is(err, apperrors.ErrTimeout) {
		return msgUnreachable
	}
	return msgLoginFailed
}

// Logout revokes the session remotely on a best-effort basis and always
// clears it locally. A call made while another logout is still running
// returns immediately without doing anything.
func (c *Controller) Logout(ctx context.Context) error {
	if !c.loggingOut.CompareAndSwap(false, true) {
		c.log.Debug().Msg("logout already in progress")
		return nil
	}
	defer c.loggingOut.Store(false)

	if cred := c.State().Credential; cred != nil {
		revokeCtx, cancel := context.WithTimeout(ctx, c.logoutTimeout)
		err := c.api.Revoke(revokeCtx, cred.AccessToken, cred.RenewalToken)
		cancel()
		if err != nil {
			c.log.Warn().Err(err).Msg("remote revoke failed, clearing local session anyway")
		}
	}

	var clearErr error
	c.commit(authmodel.EventLogout, func(authmodel.State) (authmodel.State, bool) {
		clearErr = c.store.Clear(context.WithoutCancel(ctx))
		return authmodel.Anonymous(""), true
	})
	if clearErr != nil {
		return errors.Wrap(clearErr, "[session.Logout] clear store")
	}

	c.log.Info().Msg("logged out")
	return nil
}
