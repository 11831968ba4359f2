package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Tokens holds one issued access/refresh pair.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// TokenMetadata is the claim set carried by every token. Otp=true marks a
// session that has signed in with a password but not yet passed its
// one-time-code check.
type TokenMetadata struct {
	UserID string
	Otp    bool
	Exp    int64
}

var ErrInvalidToken = errors.New("invalid or expired token")

func generateToken(userID string, otp bool, ttl time.Duration, key []byte) (string, error) {
	claims := jwt.MapClaims{
		"id":  userID,
		"otp": otp,
		"exp": time.Now().Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	return token.SignedString(key)
}

// ParseToken validates a token against key and extracts its metadata.
func ParseToken(token string, key []byte) (*TokenMetadata, error) {
	t, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return key, nil
	})
	if err != nil || !t.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	id, ok := claims["id"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}
	otp, _ := claims["otp"].(bool)
	exp, _ := claims["exp"].(float64)

	return &TokenMetadata{UserID: id, Otp: otp, Exp: int64(exp)}, nil
}
