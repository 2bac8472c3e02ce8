// Package auth resolves bearer credentials to user identities. Tokens are
// issued and verified elsewhere in the platform; this subsystem only needs
// the stable user id out of them.
package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

type Identity struct {
	UserID   string
	Username string
}

type Validator struct {
	secret []byte
}

func NewValidator(secret string) *Validator {
	return &Validator{secret: []byte(secret)}
}

func (v *Validator) Validate(tokenStr string) (*Identity, error) {
	tok, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, err
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return nil, errors.New("invalid token")
	}
	id := &Identity{}
	if sub, ok := claims["sub"].(string); ok {
		id.UserID = sub
	} else if uid, ok := claims["user_id"].(string); ok {
		id.UserID = uid
	}
	if id.UserID == "" {
		return nil, errors.New("token missing subject")
	}
	if name, ok := claims["username"].(string); ok {
		id.Username = name
	}
	return id, nil
}
