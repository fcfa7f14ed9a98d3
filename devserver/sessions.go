package devserver

import (
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-client/token/refresh"
	"golang.org/x/time/rate"
)

func (s *Server) startSession(userID string) *liveSession {
	now := s.nowTime()
	ls := &liveSession{
		id:         uuid.New().String(),
		userID:     userID,
		createdAt:  now,
		lastUsedAt: now,
	}
	s.sessionsLock.Lock()
	s.sessions[ls.id] = ls
	s.sessionsLock.Unlock()
	return ls
}

// touchSession records use of a session and reports whether it is live
func (s *Server) touchSession(id string) bool {
	s.sessionsLock.Lock()
	defer s.sessionsLock.Unlock()
	ls, ok := s.sessions[id]
	if !ok {
		return false
	}
	ls.lastUsedAt = s.nowTime()
	return true
}

func (s *Server) endSession(id string) bool {
	s.sessionsLock.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.sessionsLock.Unlock()

	if err := s.refresh.RevokeSession(id); err != nil && !errors.Is(err, refresh.ErrNotFound) {
		s.log.Error().Err(err).Str("session_id", id).Msg("failed to revoke renewal token")
	}
	return ok
}

func (s *Server) endUserSessions(userID string) {
	for _, ls := range s.userSessions(userID) {
		s.endSession(ls.id)
	}
}

// userSessions returns copies of the user's live sessions, oldest first
func (s *Server) userSessions(userID string) []liveSession {
	s.sessionsLock.RLock()
	defer s.sessionsLock.RUnlock()

	out := make([]liveSession, 0)
	for _, ls := range s.sessions {
		if ls.userID == userID {
			out = append(out, *ls)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].createdAt.Before(out[j].createdAt)
	})
	return out
}

func (s *Server) sessionOwner(id string) (string, bool) {
	s.sessionsLock.RLock()
	defer s.sessionsLock.RUnlock()
	ls, ok := s.sessions[id]
	if !ok {
		return "", false
	}
	return ls.userID, true
}

func (s *Server) loginLimiter(email string) *rate.Limiter {
	s.limitersLock.Lock()
	defer s.limitersLock.Unlock()
	l, ok := s.limiters[email]
	if !ok {
		l = rate.NewLimiter(s.loginRate, s.loginBurst)
		s.limiters[email] = l
	}
	return l
}
