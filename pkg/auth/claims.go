package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	OrgID  uuid.UUID
	Email  string
	JTI    string
}

// AccessTokenClaims represents the typed JWT issued to clients. Every
// authenticated request is scoped to the organization in OrgID.
type AccessTokenClaims struct {
	UserID uuid.UUID `json:"user_id"`
	OrgID  uuid.UUID `json:"org_id"`
	Email  string    `json:"email,omitempty"`
	jwt.RegisteredClaims
}
