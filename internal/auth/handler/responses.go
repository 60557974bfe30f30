package handler

import (
	"time"

	"girok/internal/auth/models"
	"girok/internal/auth/service"
	id "girok/pkg/domain"
)

// RegisterResponse is the 201 body for registration. Registration completes
// a login, so it carries the first session's tokens.
type RegisterResponse struct {
	Success      bool      `json:"success"`
	AccountID    string    `json:"account_id"`
	ExternalID   string    `json:"external_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func FromRegisterResult(r *service.RegisterResult) RegisterResponse {
	return RegisterResponse{
		Success:      true,
		AccountID:    r.AccountID.String(),
		ExternalID:   r.ExternalID,
		Email:        r.Email,
		AccessToken:  r.Session.AccessToken,
		RefreshToken: r.Session.RefreshToken,
		TokenType:    "Bearer",
		ExpiresAt:    r.Session.ExpiresAt,
	}
}

// TokensResponse is a completed login or refresh.
type TokensResponse struct {
	Success      bool      `json:"success"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func FromSessionTokens(t *service.SessionTokens) TokensResponse {
	return TokensResponse{
		Success:      true,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    "Bearer",
		ExpiresAt:    t.ExpiresAt,
	}
}

// ChallengeResponse tells the client to run the second step.
type ChallengeResponse struct {
	MFARequired bool     `json:"mfa_required"`
	ChallengeID string   `json:"challenge_id"`
	Methods     []string `json:"methods"`
	ExpiresIn   int      `json:"expires_in"`
}

func FromChallenge(r *service.LoginResult) ChallengeResponse {
	return ChallengeResponse{
		MFARequired: true,
		ChallengeID: r.ChallengeID,
		Methods:     r.Methods,
		ExpiresIn:   int(r.ChallengeTTL.Seconds()),
	}
}

// MFASetupResponse carries the provisioned secret, shown exactly once.
type MFASetupResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
}

// BackupCodesResponse carries freshly minted plaintext backup codes.
type BackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// RevokedResponse reports how many sessions were revoked.
type RevokedResponse struct {
	Revoked int `json:"revoked"`
}

// SessionResponse is one row in the device list. The refresh hash never
// appears here.
type SessionResponse struct {
	SessionID      string    `json:"session_id"`
	DeviceName     string    `json:"device_name"`
	IPAddress      string    `json:"ip_address"`
	Current        bool      `json:"current"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// SessionListResponse is the device list body.
type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

func FromSessions(sessions []*models.Session, current id.SessionID) SessionListResponse {
	out := SessionListResponse{Sessions: make([]SessionResponse, 0, len(sessions))}
	for _, s := range sessions {
		out.Sessions = append(out.Sessions, SessionResponse{
			SessionID:      s.ID.String(),
			DeviceName:     s.DeviceName,
			IPAddress:      s.IPAddress,
			Current:        s.ID == current,
			CreatedAt:      s.CreatedAt,
			LastActivityAt: s.LastActivityAt,
		})
	}
	return out
}
