package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"genstudio/internal/api"
	"genstudio/internal/models"
)

// Login signs a standard account in.
func (s *Store) Login(ctx context.Context, email, password string) (*models.UserProfile, error) {
	return s.authenticate(ctx, api.PathLogin, models.LoginRequest{Email: email, Password: password}, models.AccountStandard)
}

// LoginAI signs an AI-tier account in.
func (s *Store) LoginAI(ctx context.Context, email, password string) (*models.UserProfile, error) {
	return s.authenticate(ctx, api.PathAILogin, models.LoginRequest{Email: email, Password: password}, models.AccountAI)
}

// VerifyEmail exchanges the emailed code for a full session.
func (s *Store) VerifyEmail(ctx context.Context, email, code string) (*models.UserProfile, error) {
	return s.authenticate(ctx, api.PathAIVerifyEmail, models.VerifyEmailRequest{Email: email, Code: code}, models.AccountAI)
}

func (s *Store) authenticate(ctx context.Context, path string, body interface{}, accountType string) (*models.UserProfile, error) {
	s.begin()

	resp, err := s.client.Post(ctx, path, body)
	if err != nil {
		return nil, s.fail(err)
	}

	var auth models.AuthResponse
	if err := resp.Decode(&auth); err != nil {
		return nil, s.fail(fmt.Errorf("%w: %v", errMalformedAuth, err))
	}
	if auth.AccessToken == "" || auth.RefreshToken == "" || auth.User == nil {
		return nil, s.fail(errMalformedAuth)
	}
	if accountType == models.AccountAI && auth.User.Type == "" {
		auth.User.Type = models.AccountAI
	}

	if err := s.establish(ctx, &auth); err != nil {
		return nil, s.fail(err)
	}

	s.logger.WithField("account_type", accountType).Info("signed in")
	return cloneProfile(auth.User), nil
}

// Register creates a standard account. It does not sign in.
func (s *Store) Register(ctx context.Context, req models.RegisterRequest) (*models.UserProfile, error) {
	return s.register(ctx, api.PathRegister, req)
}

// RegisterAI creates an AI-tier account. The backend emails a code that
// VerifyEmail exchanges for a session.
func (s *Store) RegisterAI(ctx context.Context, req models.RegisterRequest) (*models.UserProfile, error) {
	return s.register(ctx, api.PathAIRegister, req)
}

func (s *Store) register(ctx context.Context, path string, req models.RegisterRequest) (*models.UserProfile, error) {
	s.begin()
	defer s.done()

	resp, err := s.client.Post(ctx, path, req)
	if err != nil {
		return nil, s.fail(err)
	}

	var user models.UserProfile
	if err := resp.Decode(&user); err != nil {
		if errors.Is(err, api.ErrNoData) {
			return nil, nil
		}
		return nil, s.fail(err)
	}
	return &user, nil
}

// ResendOTP asks the backend to email a new verification code.
func (s *Store) ResendOTP(ctx context.Context, email string) error {
	s.begin()
	defer s.done()

	if _, err := s.client.Post(ctx, api.PathAIResendOTP, models.ResendOTPRequest{Email: email}); err != nil {
		return s.fail(err)
	}
	return nil
}

// FetchProfile merges the backend's current view of the user.
func (s *Store) FetchProfile(ctx context.Context) (*models.UserProfile, error) {
	if _, err := s.requireAuth(); err != nil {
		return nil, s.fail(err)
	}
	s.begin()
	defer s.done()

	resp, err := s.client.Get(ctx, api.PathMe, nil)
	if err != nil {
		return nil, s.fail(err)
	}
	return s.mergeUser(ctx, resp.Data)
}

// UpdateProfile patches the user and merges the echoed fields.
func (s *Store) UpdateProfile(ctx context.Context, fields map[string]interface{}) (*models.UserProfile, error) {
	if _, err := s.requireAuth(); err != nil {
		return nil, s.fail(err)
	}
	s.begin()
	defer s.done()

	resp, err := s.client.Patch(ctx, api.PathMe, fields)
	if err != nil {
		return nil, s.fail(err)
	}
	return s.mergeUser(ctx, resp.Data)
}

// UpdateAIProfile patches the user's AI profile.
func (s *Store) UpdateAIProfile(ctx context.Context, fields map[string]interface{}) (*models.UserProfile, error) {
	user, err := s.requireAuth()
	if err != nil {
		return nil, s.fail(err)
	}
	if user.AIProfile == nil || user.AIProfile.ID == "" {
		return nil, s.fail(ErrNoAIProfile)
	}
	s.begin()
	defer s.done()

	resp, err := s.client.Patch(ctx, api.AIProfilePath(user.AIProfile.ID), fields)
	if err != nil {
		return nil, s.fail(err)
	}
	return s.mergeAIProfile(ctx, user.AIProfile.ID, resp.Data)
}

// UploadAvatar uploads a local image and returns its remote URL.
func (s *Store) UploadAvatar(ctx context.Context, filePath string) (string, error) {
	if _, err := s.requireAuth(); err != nil {
		return "", s.fail(err)
	}
	s.begin()
	defer s.done()

	resp, err := s.client.Upload(ctx, api.PathMyAvatar, filePath)
	if err != nil {
		return "", s.fail(err)
	}

	var out struct {
		AvatarURL string `json:"avatarUrl"`
	}
	if err := resp.Decode(&out); err != nil {
		return "", s.fail(fmt.Errorf("failed to decode avatar upload: %w", err))
	}
	if out.AvatarURL == "" {
		return "", s.fail(errors.New("avatar upload returned no url"))
	}

	if _, err := s.mergeUser(ctx, resp.Data); err != nil {
		return "", s.fail(err)
	}
	return out.AvatarURL, nil
}

// UploadLogo uploads a company logo for profileID and returns its remote URL.
func (s *Store) UploadLogo(ctx context.Context, profileID, filePath string) (string, error) {
	if _, err := s.requireAuth(); err != nil {
		return "", s.fail(err)
	}
	s.begin()
	defer s.done()

	resp, err := s.client.Upload(ctx, api.AIProfileLogoPath(profileID), filePath)
	if err != nil {
		return "", s.fail(err)
	}

	var out struct {
		LogoURL string `json:"logoUrl"`
	}
	if err := resp.Decode(&out); err != nil {
		return "", s.fail(fmt.Errorf("failed to decode logo upload: %w", err))
	}
	if out.LogoURL == "" {
		return "", s.fail(errors.New("logo upload returned no url"))
	}

	if _, err := s.mergeAIProfile(ctx, profileID, resp.Data); err != nil {
		return "", s.fail(err)
	}
	return out.LogoURL, nil
}

// ChangePassword changes the password. Local state is untouched apart from
// the error field.
func (s *Store) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if _, err := s.requireAuth(); err != nil {
		return s.fail(err)
	}
	s.begin()
	defer s.done()

	body := models.ChangePasswordRequest{OldPassword: oldPassword, NewPassword: newPassword}
	if _, err := s.client.Post(ctx, api.PathMyPassword, body); err != nil {
		return s.fail(err)
	}
	return nil
}

// FinishOnboarding sets the onboarding flag locally, then tries to sync it.
// The local flag drives navigation, so a failed sync is only logged.
func (s *Store) FinishOnboarding(ctx context.Context) {
	var authenticated bool
	s.update(func(st *State) {
		st.HasFinishedOnboarding = true
		if st.User != nil {
			st.User.HasFinishedOnboarding = true
		}
		authenticated = st.IsAuthenticated
	})
	s.persist(ctx)

	if !authenticated {
		return
	}
	if _, err := s.client.Patch(ctx, api.PathMe, map[string]interface{}{"hasFinishedOnboarding": true}); err != nil {
		s.logger.WithError(err).Warn("failed to sync onboarding flag")
	}
}

func (s *Store) mergeUser(ctx context.Context, data json.RawMessage) (*models.UserProfile, error) {
	var merged *models.UserProfile
	var mergeErr error
	s.update(func(st *State) {
		merged, mergeErr = mergeProfile(st.User, data)
		if mergeErr == nil {
			st.User = merged
			if merged.HasFinishedOnboarding {
				st.HasFinishedOnboarding = true
			}
		}
	})
	if mergeErr != nil {
		return nil, mergeErr
	}
	s.persist(ctx)
	return cloneProfile(merged), nil
}

// mergeAIProfile merges data into the nested AI profile when it belongs to
// the current user.
func (s *Store) mergeAIProfile(ctx context.Context, profileID string, data json.RawMessage) (*models.UserProfile, error) {
	wrapped, err := json.Marshal(map[string]json.RawMessage{"aiProfile": data})
	if err != nil {
		return nil, err
	}

	var merged *models.UserProfile
	var mergeErr error
	var matched bool
	s.update(func(st *State) {
		if st.User == nil || st.User.AIProfile == nil || st.User.AIProfile.ID != profileID {
			merged = cloneProfile(st.User)
			return
		}
		matched = true
		merged, mergeErr = mergeProfile(st.User, wrapped)
		if mergeErr == nil {
			st.User = merged
		}
	})
	if mergeErr != nil {
		return nil, mergeErr
	}
	if matched {
		s.persist(ctx)
	}
	return cloneProfile(merged), nil
}
