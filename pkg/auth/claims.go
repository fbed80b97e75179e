package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-order-progress/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID  uuid.UUID
	StoreID *uuid.UUID
	Role    enums.ActorRole
	JTI     string
}

// AccessTokenClaims represents the typed JWT presented by clients.
type AccessTokenClaims struct {
	UserID  uuid.UUID       `json:"user_id"`
	StoreID *uuid.UUID      `json:"store_id,omitempty"`
	Role    enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}
