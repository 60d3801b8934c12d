package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenService emite y valida los tokens de sesión firmados.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

// SessionTTL es la vigencia del token de sesión y de su cookie.
const SessionTTL = 7 * 24 * time.Hour

type sessionClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
)

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = SessionTTL
	}
	return &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: "auth-api",
	}
}

// Issue firma un token de sesión que identifica al usuario.
func (s *TokenService) Issue(userID string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrTokenInvalid
	}
	if strings.TrimSpace(userID) == "" {
		return "", ErrTokenInvalid
	}
	now := time.Now().UTC()
	claims := sessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify valida firma, vigencia y emisor, y devuelve el id del usuario.
func (s *TokenService) Verify(tokenString string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrTokenInvalid
	}
	if strings.TrimSpace(tokenString) == "" {
		return "", ErrTokenInvalid
	}

	var claims sessionClaims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenInvalid
	}

	if strings.TrimSpace(claims.UserID) == "" {
		return "", ErrTokenInvalid
	}
	if claims.Subject != claims.UserID {
		return "", ErrTokenInvalid
	}
	if strings.TrimSpace(claims.Issuer) != s.issuer {
		return "", ErrTokenInvalid
	}
	return claims.UserID, nil
}
