package handler

// RegisterRequest is the wire form of POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
	Country  string `json:"country,omitempty"`
	Locale   string `json:"locale,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// LoginRequest is the wire form of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginMFARequest is the wire form of POST /auth/login/mfa.
type LoginMFARequest struct {
	ChallengeID string `json:"challenge_id"`
	Method      string `json:"method"`
	Code        string `json:"code"`
}

// RefreshRequest is the wire form of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ChangePasswordRequest is the wire form of POST /auth/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// MFACodeRequest carries a single verification code.
type MFACodeRequest struct {
	Code string `json:"code"`
}

// MFADisableRequest requires both the password and a live code.
type MFADisableRequest struct {
	Password string `json:"password"`
	Method   string `json:"method"`
	Code     string `json:"code"`
}

// PasswordRequest carries a password re-confirmation.
type PasswordRequest struct {
	Password string `json:"password"`
}
