package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// Email is optional; when absent the agent identity falls back to user-<id>.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}

// Subject is the authenticated principal tokens are issued for.
type Subject struct {
	UserID string
	Email  string
	Role   string
}

// Identity is the stable per-agent name registered with the browser voice client.
func (s Subject) Identity() string {
	return AgentIdentity(s.UserID, s.Email)
}

// AgentIdentity prefers the email and falls back to user-<id>.
func AgentIdentity(userID, email string) string {
	if email != "" {
		return email
	}
	return "user-" + userID
}
