package auth

import "github.com/golang-jwt/jwt/v5"

// Scope is the only scope the time engine API accepts.
const Scope = "time"

// Claims represents the JWT claims for access tokens. The subject is the
// user ID that owns engine data.
type Claims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}
