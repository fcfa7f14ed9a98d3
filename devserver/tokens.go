package devserver

import (
	"fmt"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-client/users"
)

// accessClaims are the claims of a dev server access token
type accessClaims struct {
	SessionID  string `json:"sid"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	Generation int64  `json:"gen"`
	jwtlib.RegisteredClaims
}

// createAccessToken signs an HS256 access token for user in session sid
func (s *Server) createAccessToken(user *users.User, sid string) (string, error) {
	now := s.nowTime()
	claims := accessClaims{
		SessionID:  sid,
		Email:      user.Email,
		Role:       string(user.Role),
		Generation: s.generation.Load(),
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    s.config.GetAppName(),
			Subject:   user.ID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(s.config.GetAccessTokenTTL())),
			ID:        uuid.New().String(),
		},
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(s.config.GetSigningSecret()))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

func (s *Server) parseAccessToken(raw string) (*accessClaims, error) {
	claims := &accessClaims{}
	_, err := jwtlib.ParseWithClaims(raw, claims, func(*jwtlib.Token) (interface{}, error) {
		return []byte(s.config.GetSigningSecret()), nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithTimeFunc(s.nowTime),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if claims.Generation < s.generation.Load() {
		return nil, fmt.Errorf("access token generation %d was expired", claims.Generation)
	}
	return claims, nil
}
