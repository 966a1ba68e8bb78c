package models

import "github.com/golang-jwt/jwt/v5"

// Actor identifies the caller of a core operation.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// SystemActor performs detached background writes.
var SystemActor = Actor{ID: "system", Name: "System", Role: RoleDirector}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string `json:"user_id"`
	Role     Role   `json:"role"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name"`
	jwt.RegisteredClaims
}

// Actor converts the claims into the identity passed to services.
func (c *JWTClaims) Actor() Actor {
	if c == nil {
		return Actor{}
	}
	return Actor{ID: c.UserID, Name: c.FullName, Role: c.Role}
}
