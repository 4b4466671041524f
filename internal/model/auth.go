package model

import "github.com/golang-jwt/jwt/v5"

// UserClaims are the bearer token claims issued by the identity service.
// The subject is the userId.
type UserClaims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}
