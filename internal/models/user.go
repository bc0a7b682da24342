package models

import (
	"time"

	"github.com/google/uuid"
)

// Account types. Standard accounts use the legacy auth routes, AI accounts
// the /ai/auth family.
const (
	AccountStandard = "standard"
	AccountAI       = "ai"
)

// UserProfile is the client-side snapshot of the backend user. Updates are
// merged field by field, see session.mergeProfile.
type UserProfile struct {
	ID                    string     `json:"id,omitempty"`
	Email                 string     `json:"email,omitempty"`
	FirstName             string     `json:"firstName,omitempty"`
	LastName              string     `json:"lastName,omitempty"`
	Phone                 string     `json:"phone,omitempty"`
	AvatarURL             string     `json:"avatarUrl,omitempty"`
	Type                  string     `json:"type,omitempty"`
	IsVerified            bool       `json:"isVerified,omitempty"`
	HasFinishedOnboarding bool       `json:"hasFinishedOnboarding,omitempty"`
	AIProfile             *AIProfile `json:"aiProfile,omitempty"`
}

// IsAI reports whether the user authenticates through the AI tier routes.
func (u *UserProfile) IsAI() bool {
	return u != nil && u.Type == AccountAI
}

// AIProfile is the AI-tier company profile nested in a user.
type AIProfile struct {
	ID          string `json:"id,omitempty"`
	CompanyName string `json:"companyName,omitempty"`
	Activity    string `json:"activity,omitempty"`
	LogoURL     string `json:"logoUrl,omitempty"`
	Plan        string `json:"plan,omitempty"`
	Usage       *Usage `json:"usage,omitempty"`
}

type Usage struct {
	GenerationsUsed  int `json:"generationsUsed"`
	GenerationsLimit int `json:"generationsLimit"`
}

// Account is the backend's stored user record.
type Account struct {
	ID                    uuid.UUID  `json:"id"`
	Email                 string     `json:"email"`
	PasswordHash          string     `json:"-"`
	FirstName             string     `json:"firstName"`
	LastName              string     `json:"lastName"`
	Phone                 string     `json:"phone"`
	AvatarURL             *string    `json:"avatarUrl"`
	Type                  string     `json:"type"`
	IsVerified            bool       `json:"isVerified"`
	IsActive              bool       `json:"isActive"`
	HasFinishedOnboarding bool       `json:"hasFinishedOnboarding"`
	CreatedAt             time.Time  `json:"createdAt"`
	LastLoginAt           *time.Time `json:"lastLoginAt"`

	Company *CompanyProfile `json:"-"`
}

// CompanyProfile is the backend's stored AI profile.
type CompanyProfile struct {
	ID               uuid.UUID `json:"id"`
	UserID           uuid.UUID `json:"userId"`
	CompanyName      string    `json:"companyName"`
	Activity         string    `json:"activity"`
	LogoURL          *string   `json:"logoUrl"`
	Plan             string    `json:"plan"`
	GenerationsUsed  int       `json:"generationsUsed"`
	GenerationsLimit int       `json:"generationsLimit"`
}

// Profile renders the account the way the API returns it.
func (a *Account) Profile() *UserProfile {
	p := &UserProfile{
		ID:                    a.ID.String(),
		Email:                 a.Email,
		FirstName:             a.FirstName,
		LastName:              a.LastName,
		Phone:                 a.Phone,
		Type:                  a.Type,
		IsVerified:            a.IsVerified,
		HasFinishedOnboarding: a.HasFinishedOnboarding,
	}
	if a.AvatarURL != nil {
		p.AvatarURL = *a.AvatarURL
	}
	if a.Company != nil {
		p.AIProfile = a.Company.Profile()
	}
	return p
}

func (c *CompanyProfile) Profile() *AIProfile {
	p := &AIProfile{
		ID:          c.ID.String(),
		CompanyName: c.CompanyName,
		Activity:    c.Activity,
		Plan:        c.Plan,
		Usage: &Usage{
			GenerationsUsed:  c.GenerationsUsed,
			GenerationsLimit: c.GenerationsLimit,
		},
	}
	if c.LogoURL != nil {
		p.LogoURL = *c.LogoURL
	}
	return p
}

type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Phone       string `json:"phone,omitempty"`
	CompanyName string `json:"companyName,omitempty"`
	Activity    string `json:"activity,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type VerifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type ResendOTPRequest struct {
	Email string `json:"email"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type AuthTokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn,omitempty"`
}

// AuthResponse is the payload of login and verify-email.
type AuthResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresIn    int          `json:"expiresIn,omitempty"`
	User         *UserProfile `json:"user"`
}

func (r *AuthResponse) Tokens() AuthTokens {
	return AuthTokens{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken, ExpiresIn: r.ExpiresIn}
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// UpdateProfileRequest is the body of PATCH /users/me. Nil fields are left
// unchanged.
type UpdateProfileRequest struct {
	FirstName             *string `json:"firstName"`
	LastName              *string `json:"lastName"`
	Phone                 *string `json:"phone"`
	HasFinishedOnboarding *bool   `json:"hasFinishedOnboarding"`
}

type UpdateAIProfileRequest struct {
	CompanyName *string `json:"companyName"`
	Activity    *string `json:"activity"`
}
