package devserver

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
)

type contextKey string

const contextKeyClaims contextKey = "claims"

func ChainMiddleware(routeFunction http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	chainedHandler := routeFunction
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chainedHandler = mw[i](chainedHandler)
	}
	return chainedHandler
}

func (s *Server) APIMiddleware(mw ...func(http.HandlerFunc) http.HandlerFunc) []func(http.HandlerFunc) http.HandlerFunc {
	chainedMiddleWare := []func(http.HandlerFunc) http.HandlerFunc{
		s.LoggingMiddleware,
		s.RecoverMiddleware,
		s.NoStoreMiddleware,
	}
	return append(chainedMiddleWare, mw...)
}

func (s *Server) LoggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.env == "DEV" {
			s.log.Debug().Msgf("[%s] %s", colourMethod(r.Method), r.URL.Path)
		}
		next(w, r)
	}
}

func (s *Server) RecoverMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error().Interface("panic", rec).Str("path", r.URL.Path).Bytes("stack", debug.Stack()).Msg("handler panicked")
				writeMessage(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next(w, r)
	}
}

// NoStoreMiddleware keeps token responses out of caches
func (s *Server) NoStoreMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		next(w, r)
	}
}

// RequireAuth validates the bearer access token and the session it belongs to
func (s *Server) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeMessage(w, http.StatusUnauthorized, "Missing or malformed Authorization header")
			return
		}

		claims, err := s.parseAccessToken(token)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "Access token is invalid or expired")
			return
		}
		if !s.touchSession(claims.SessionID) {
			writeMessage(w, http.StatusUnauthorized, "Session has ended")
			return
		}

		s.stats.apiRequests.Add(1)
		ctx := context.WithValue(r.Context(), contextKeyClaims, claims)
		next(w, r.WithContext(ctx))
	}
}

func claimsFrom(ctx context.Context) *accessClaims {
	claims, _ := ctx.Value(contextKeyClaims).(*accessClaims)
	return claims
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", false
	}
	return token, true
}
