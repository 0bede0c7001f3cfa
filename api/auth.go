// Package api holds the JSON request and response types of the HTTP surface.
package api

import "time"

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type RegisterResponse struct {
	AccountID string `json:"accountId"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries either tokens (status NOT_REQUIRED) or a challenge id
// the client must verify first (status REQUIRED).
type LoginResponse struct {
	TwoFactor          string     `json:"twoFactor"` // REQUIRED or NOT_REQUIRED
	ChallengeID        string     `json:"challengeId,omitempty"`
	ChallengeExpiresAt *time.Time `json:"challengeExpiresAt,omitempty"`
	*TokenPair
}

type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	AccountID    string    `json:"accountId"`
}

type VerifyRequest struct {
	ChallengeID string `json:"challengeId"`
	Code        string `json:"code"`
}

type ResendRequest struct {
	ChallengeID string `json:"challengeId"`
}

type ResendResponse struct {
	ChallengeID string    `json:"challengeId"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}
