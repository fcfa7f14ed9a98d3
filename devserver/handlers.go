package devserver

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/jrsteele09/go-session-client/authapi"
	"github.com/jrsteele09/go-session-client/internal/utils"
	"github.com/jrsteele09/go-session-client/token/refresh"
	"github.com/jrsteele09/go-session-client/users"
)

const (
	contentTypeJSON = "application/json; charset=utf-8"

	pendingTokenTTL = time.Hour
	maxRequestBody  = 1 << 20
)

// Messages returned to clients
const (
	msgInvalidCredentials = "Invalid email or password"
	msgAccountBlocked     = "Your account has been blocked"
	msgTooManyAttempts    = "Too many login attempts. Please try again later."
	msgInvalidRenewal     = "Invalid or expired refresh token"
	msgInvalidReset       = "Reset link is invalid or has expired"
	msgInvalidVerify      = "Verification link is invalid or has expired"
	msgBadRequest         = "Request body must be valid JSON"
)

// LoginHandler exchanges email and password for tokens
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authapi.LoginRequest
		if !decode(w, r, &req) {
			return
		}
		email := users.NormalizeEmail(req.Email)

		if !s.loginLimiter(email).AllowN(s.nowTime(), 1) {
			s.stats.loginFailures.Add(1)
			writeMessage(w, http.StatusTooManyRequests, msgTooManyAttempts)
			return
		}

		user, err := s.users.GetByEmail(email)
		if err != nil || !user.CheckPassword(req.Password) {
			s.stats.loginFailures.Add(1)
			s.log.Info().Str("email", email).Msg("login rejected")
			writeMessage(w, http.StatusUnauthorized, msgInvalidCredentials)
			return
		}
		if user.Blocked {
			s.stats.loginFailures.Add(1)
			writeMessage(w, http.StatusForbidden, msgAccountBlocked)
			return
		}

		ls := s.startSession(user.ID)
		resp, err := s.tokenResponse(user, ls.id, "")
		if err != nil {
			s.endSession(ls.id)
			s.log.Error().Err(err).Msg("failed to issue tokens")
			writeMessage(w, http.StatusInternalServerError, "Failed to issue tokens")
			return
		}
		if err := s.users.SetLastLogin(email, s.nowTime()); err != nil {
			s.log.Warn().Err(err).Msg("failed to record last login")
		}

		s.stats.logins.Add(1)
		s.log.Info().Str("user_id", user.ID).Str("session_id", ls.id).Msg("login")
		writeJSON(w, http.StatusOK, resp)
	}
}

// RefreshHandler rotates a renewal token and issues a new access token
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authapi.RefreshRequest
		if !decode(w, r, &req) {
			return
		}
		if req.RefreshToken == "" {
			s.stats.renewalFailures.Add(1)
			writeMessage(w, http.StatusBadRequest, "refresh_token is required")
			return
		}

		rt, err := s.refresh.Rotate(req.RefreshToken)
		if err != nil {
			s.stats.renewalFailures.Add(1)
			if !errors.Is(err, refresh.ErrNotFound) && !errors.Is(err, refresh.ErrExpired) {
				s.log.Error().Err(err).Msg("renewal token rotation failed")
			}
			writeMessage(w, http.StatusUnauthorized, msgInvalidRenewal)
			return
		}

		user, err := s.users.GetByID(rt.UserID)
		if err != nil || user.Blocked || !s.touchSession(rt.SessionID) {
			s.stats.renewalFailures.Add(1)
			s.endSession(rt.SessionID)
			writeMessage(w, http.StatusUnauthorized, msgInvalidRenewal)
			return
		}

		resp, err := s.tokenResponse(user, rt.SessionID, rt.Token)
		if err != nil {
			s.log.Error().Err(err).Msg("failed to issue tokens")
			writeMessage(w, http.StatusInternalServerError, "Failed to issue tokens")
			return
		}

		s.stats.renewals.Add(1)
		writeJSON(w, http.StatusOK, resp)
	}
}

// LogoutHandler ends the session named by the renewal token or, failing
// that, by a still-valid access token. It always answers 204.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authapi.LogoutRequest
		_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req)

		sid := ""
		if token := utils.Value(req.RefreshToken); token != "" {
			if rt, err := s.refresh.Get(token); err == nil {
				sid = rt.SessionID
			}
		}
		if sid == "" {
			if bearer, ok := bearerToken(r); ok {
				if claims, err := s.parseAccessToken(bearer); err == nil {
					sid = claims.SessionID
				}
			}
		}

		if sid != "" && s.endSession(sid) {
			s.stats.logouts.Add(1)
			s.log.Info().Str("session_id", sid).Msg("logout")
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// PasswordResetRequestHandler mails a reset token when the account exists.
// The answer is the same either way.
func (s *Server) PasswordResetRequestHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authapi.PasswordResetRequest
		if !decode(w, r, &req) {
			return
		}
		if token, err := s.IssueResetToken(req.Email); err == nil {
			s.mailer(string(pendingReset), users.NormalizeEmail(req.Email), token)
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

// PasswordResetConfirmHandler sets a new password and ends every session of the user
func (s *Server) PasswordResetConfirmHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authapi.PasswordResetConfirm
		if !decode(w, r, &req) {
			return
		}
		if err := users.ValidatePasswordStrength(req.Password); err != nil {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}

		email, ok := s.redeem(req.Token, pendingReset)
		if !ok {
			writeMessage(w, http.StatusBadRequest, msgInvalidReset)
			return
		}
		user, err := s.users.GetByEmail(email)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, msgInvalidReset)
			return
		}

		hash, err := users.HashPassword(req.Password)
		if err != nil {
			s.log.Error().Err(err).Msg("failed to hash password")
			writeMessage(w, http.StatusInternalServerError, "Failed to update password")
			return
		}
		if err := s.users.SetPasswordHash(email, hash); err != nil {
			s.log.Error().Err(err).Msg("failed to store password")
			writeMessage(w, http.StatusInternalServerError, "Failed to update password")
			return
		}

		s.endUserSessions(user.ID)
		s.log.Info().Str("user_id", user.ID).Msg("password reset")
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) VerifyEmailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authapi.VerifyEmailRequest
		if !decode(w, r, &req) {
			return
		}
		email, ok := s.redeem(req.Token, pendingVerify)
		if !ok {
			writeMessage(w, http.StatusBadRequest, msgInvalidVerify)
			return
		}
		if err := s.users.SetVerified(email, true); err != nil {
			writeMessage(w, http.StatusBadRequest, msgInvalidVerify)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) ListSessionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFrom(r.Context())

		list := authapi.SessionList{Sessions: make([]authapi.RemoteSession, 0)}
		for _, ls := range s.userSessions(claims.Subject) {
			list.Sessions = append(list.Sessions, authapi.RemoteSession{
				ID:         ls.id,
				CreatedAt:  ls.createdAt,
				LastUsedAt: ls.lastUsedAt,
				Current:    ls.id == claims.SessionID,
			})
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func (s *Server) RevokeSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFrom(r.Context())
		id := r.PathValue("id")

		if owner, ok := s.sessionOwner(id); !ok || owner != claims.Subject {
			writeMessage(w, http.StatusNotFound, "Session not found")
			return
		}
		s.endSession(id)
		w.WriteHeader(http.StatusNoContent)
	}
}

// MeHandler returns the caller's identity
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFrom(r.Context())
		user, err := s.users.GetByID(claims.Subject)
		if err != nil {
			writeMessage(w, http.StatusNotFound, "User not found")
			return
		}
		writeJSON(w, http.StatusOK, wireUser(user))
	}
}

// tokenResponse issues an access token and, when enabled, a renewal token.
// rotated is a renewal token already issued by Rotate.
func (s *Server) tokenResponse(user *users.User, sid, rotated string) (*authapi.TokenResponse, error) {
	access, err := s.createAccessToken(user, sid)
	if err != nil {
		return nil, err
	}

	resp := &authapi.TokenResponse{
		AccessToken: access,
		TokenType:   "bearer",
		ExpiresIn:   int(s.config.GetAccessTokenTTL().Seconds()),
		User:        wireUser(user),
	}
	switch {
	case rotated != "":
		resp.RefreshToken = utils.Ptr(rotated)
	case s.issueRenewalTokens:
		rt, err := s.refresh.Create(user.ID, sid)
		if err != nil {
			return nil, err
		}
		resp.RefreshToken = utils.Ptr(rt.Token)
	}
	return resp, nil
}

func wireUser(u *users.User) *authapi.User {
	id := u.Identity()
	return &authapi.User{
		ID:            id.ID,
		Email:         id.Email,
		DisplayName:   id.DisplayName,
		EmailVerified: id.EmailVerified,
		Role:          string(id.Role),
	}
}

func (s *Server) issuePending(kind pendingKind, email string) (string, error) {
	email = users.NormalizeEmail(email)
	if _, err := s.users.GetByEmail(email); err != nil {
		return "", err
	}

	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)

	s.pendingLock.Lock()
	s.pending[token] = pendingToken{kind: kind, email: email, expiresAt: s.nowTime().Add(pendingTokenTTL)}
	s.pendingLock.Unlock()
	return token, nil
}

// redeem consumes a pending token of the given kind and returns its email
func (s *Server) redeem(token string, kind pendingKind) (string, bool) {
	s.pendingLock.Lock()
	defer s.pendingLock.Unlock()

	p, ok := s.pending[token]
	if !ok || p.kind != kind {
		return "", false
	}
	delete(s.pending, token)
	if !s.nowTime().Before(p.expiresAt) {
		return "", false
	}
	return p.email, true
}

func decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(out); err != nil {
		writeMessage(w, http.StatusBadRequest, msgBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, authapi.ErrorResponse{Message: message})
}
