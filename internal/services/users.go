package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"genstudio/internal/models"
	"genstudio/internal/repository"
)

// UserService serves the signed-in user's own profile.
type UserService struct {
	users repository.UserRepository
}

func NewUserService(users repository.UserRepository) *UserService {
	return &UserService{users: users}
}

func (s *UserService) account(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "User not found"}
		}
		return nil, err
	}
	return user, nil
}

func (s *UserService) Profile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	user, err := s.account(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.Profile(), nil
}

// UpdateProfile applies the non-nil fields of req.
func (s *UserService) UpdateProfile(ctx context.Context, userID uuid.UUID, req models.UpdateProfileRequest) (*models.UserProfile, error) {
	user, err := s.account(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.FirstName != nil {
		if strings.TrimSpace(*req.FirstName) == "" {
			return nil, &ValidationError{Fields: map[string]string{"firstName": "First name cannot be empty"}}
		}
		user.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		user.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Phone != nil {
		user.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.HasFinishedOnboarding != nil {
		user.HasFinishedOnboarding = *req.HasFinishedOnboarding
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user.Profile(), nil
}

func (s *UserService) SetAvatar(ctx context.Context, userID uuid.UUID, url string) (*models.UserProfile, error) {
	user, err := s.account(ctx, userID)
	if err != nil {
		return nil, err
	}

	user.AvatarURL = &url
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user.Profile(), nil
}

// ChangePassword checks the old password before storing the new one. A
// wrong old password is a validation failure, not an auth failure, so the
// client does not try to refresh its session over it.
func (s *UserService) ChangePassword(ctx context.Context, userID uuid.UUID, req models.ChangePasswordRequest) error {
	if err := validatePassword(req.NewPassword); err != nil {
		return &ValidationError{Fields: map[string]string{"newPassword": err.Error()}}
	}

	user, err := s.account(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
		return &ValidationError{Fields: map[string]string{"oldPassword": "Current password is incorrect"}}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.users.UpdatePassword(ctx, userID, string(hash))
}

// company loads companyID and checks it belongs to userID.
func (s *UserService) company(ctx context.Context, userID, companyID uuid.UUID) (*models.CompanyProfile, error) {
	company, err := s.users.GetCompany(ctx, companyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Profile not found"}
		}
		return nil, err
	}
	if company.UserID != userID {
		return nil, &ForbiddenError{Message: "Access denied"}
	}
	return company, nil
}

func (s *UserService) UpdateCompany(ctx context.Context, userID, companyID uuid.UUID, req models.UpdateAIProfileRequest) (*models.AIProfile, error) {
	company, err := s.company(ctx, userID, companyID)
	if err != nil {
		return nil, err
	}

	if req.CompanyName != nil {
		if strings.TrimSpace(*req.CompanyName) == "" {
			return nil, &ValidationError{Fields: map[string]string{"companyName": "Company name cannot be empty"}}
		}
		company.CompanyName = strings.TrimSpace(*req.CompanyName)
	}
	if req.Activity != nil {
		company.Activity = strings.TrimSpace(*req.Activity)
	}

	if err := s.users.UpdateCompany(ctx, company); err != nil {
		return nil, err
	}
	return company.Profile(), nil
}

func (s *UserService) SetLogo(ctx context.Context, userID, companyID uuid.UUID, url string) (*models.AIProfile, error) {
	company, err := s.company(ctx, userID, companyID)
	if err != nil {
		return nil, err
	}

	company.LogoURL = &url
	if err := s.users.UpdateCompany(ctx, company); err != nil {
		return nil, err
	}
	return company.Profile(), nil
}
