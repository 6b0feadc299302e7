package token

import (
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dtroode/storefront-client/internal/model"
)

// Claims mirrors the access token payload issued by the storefront backend.
type Claims struct {
	jwt.RegisteredClaims
	UserID      any    `json:"user_id"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
	IsStaff     bool   `json:"is_staff,omitempty"`
	IsSuperuser bool   `json:"is_superuser,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
}

// JWT implements TokenInspector. The client never holds the signing key,
// so signatures are not verified; the server remains the authority.
type JWT struct {
	parser *jwt.Parser
}

// NewJWT creates a new JWT inspector.
func NewJWT() model.TokenInspector {
	return &JWT{parser: jwt.NewParser()}
}

const typeAccess = "access"

// Inspect extracts user and expiry information from an access token.
func (j *JWT) Inspect(tokenString string) (model.Claims, error) {
	claims := &Claims{}
	if _, _, err := j.parser.ParseUnverified(tokenString, claims); err != nil {
		return model.Claims{}, fmt.Errorf("failed to parse access token: %w", err)
	}
	if claims.TokenType != "" && claims.TokenType != typeAccess {
		return model.Claims{}, fmt.Errorf("token type mismatch: %s", claims.TokenType)
	}

	out := model.Claims{
		UserID:      userIDString(claims.UserID),
		Email:       claims.Email,
		Role:        claims.Role,
		IsStaff:     claims.IsStaff,
		IsSuperuser: claims.IsSuperuser,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	if out.UserID == "" {
		out.UserID = claims.Subject
	}
	return out, nil
}

func userIDString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}
