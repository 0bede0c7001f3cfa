package api

import "time"

type AccountResponse struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	Name             string     `json:"name"`
	Status           string     `json:"status"`
	TwoFactorEnabled bool       `json:"twoFactorEnabled"`
	EmailChangedAt   *time.Time `json:"emailChangedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

type SetTwoFactorRequest struct {
	Enabled bool `json:"enabled"`
}

type EmailChangeRequest struct {
	NewEmail string `json:"newEmail"`
}

type EmailChangeResponse struct {
	ChallengeID string    `json:"challengeId"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type EmailChangeConfirmRequest struct {
	ChallengeID string `json:"challengeId"`
	Code        string `json:"code"`
}

type DevCodeResponse struct {
	ChallengeID string `json:"challengeId"`
	Code        string `json:"code"`
}
