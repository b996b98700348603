// Package auth issues and validates the access tokens handed out by the backend at sign-in,
// and hashes operator passwords.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds signer parameters shared by the backend implementations.
type Config struct {
	Secret string
	Issuer string
}

// Claims represents the payload carried by an access token.
type Claims struct {
	Subject   string
	SessionID string
	Email     string
	Phone     string
	ExpiresAt time.Time
}

// ErrMissingToken is returned when no token was presented.
var ErrMissingToken = errors.New("missing access token")

// ErrInvalidToken wraps parsing/validation errors.
var ErrInvalidToken = errors.New("invalid access token")

// Issue signs claims into an HS256 token.
func Issue(claims Claims, cfg Config, now time.Time) (string, error) {
	if claims.Subject == "" || claims.SessionID == "" {
		return "", fmt.Errorf("%w: subject and session id are required", ErrInvalidToken)
	}
	mapClaims := jwt.MapClaims{
		"sub":   claims.Subject,
		"sid":   claims.SessionID,
		"email": claims.Email,
		"iss":   cfg.Issuer,
		"iat":   now.Unix(),
		"exp":   claims.ExpiresAt.Unix(),
	}
	if claims.Phone != "" {
		mapClaims["phone"] = claims.Phone
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, mapClaims)
	return token.SignedString([]byte(cfg.Secret))
}

// Parse validates a token and returns normalized claims.
func Parse(token string, cfg Config) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	}, jwt.WithIssuer(cfg.Issuer), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	subject, _ := claims["sub"].(string)
	sessionID, _ := claims["sid"].(string)
	if subject == "" || sessionID == "" {
		return nil, ErrInvalidToken
	}
	email, _ := claims["email"].(string)
	phone, _ := claims["phone"].(string)

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: missing expiry", ErrInvalidToken)
	}

	return &Claims{
		Subject:   subject,
		SessionID: sessionID,
		Email:     email,
		Phone:     phone,
		ExpiresAt: exp.Time,
	}, nil
}
