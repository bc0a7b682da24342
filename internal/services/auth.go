package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"genstudio/internal/middleware"
	"genstudio/internal/models"
	"genstudio/internal/repository"
)

// bcryptCost is lowered by tests.
var bcryptCost = 12

const (
	otpDigits      = 6
	resendCooldown = 60 * time.Second
)

type AuthService struct {
	users      repository.UserRepository
	redis      *redis.Client
	jwt        *middleware.JWTAuth
	email      *EmailService
	refreshTTL time.Duration
	otpTTL     time.Duration
	logger     logrus.FieldLogger
}

func NewAuthService(
	users repository.UserRepository,
	redisClient *redis.Client,
	jwt *middleware.JWTAuth,
	email *EmailService,
	refreshTTL, otpTTL time.Duration,
	logger logrus.FieldLogger,
) *AuthService {
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	if otpTTL <= 0 {
		otpTTL = 10 * time.Minute
	}
	return &AuthService{
		users:      users,
		redis:      redisClient,
		jwt:        jwt,
		email:      email,
		refreshTTL: refreshTTL,
		otpTTL:     otpTTL,
		logger:     logger,
	}
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Register creates an account. Standard accounts are usable immediately;
// AI accounts get a company profile and must confirm the emailed code.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest, accountType string) (*models.Account, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	fieldErrors := make(map[string]string)
	if strings.TrimSpace(req.FirstName) == "" {
		fieldErrors["firstName"] = "First name is required"
	}
	if !emailRegex.MatchString(req.Email) {
		fieldErrors["email"] = "Invalid email format"
	}
	if err := validatePassword(req.Password); err != nil {
		fieldErrors["password"] = err.Error()
	}
	if accountType == models.AccountAI && strings.TrimSpace(req.CompanyName) == "" {
		fieldErrors["companyName"] = "Company name is required"
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	_, err := s.users.GetByEmail(ctx, req.Email)
	if err == nil {
		return nil, &ConflictError{Message: "Email already in use"}
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.Account{
		Email:        req.Email,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Phone:        req.Phone,
		Type:         accountType,
		IsVerified:   accountType != models.AccountAI,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	if accountType != models.AccountAI {
		return user, nil
	}

	plan := DefaultPlan()
	company := &models.CompanyProfile{
		UserID:           user.ID,
		CompanyName:      strings.TrimSpace(req.CompanyName),
		Activity:         req.Activity,
		Plan:             plan.ID,
		GenerationsLimit: plan.GenerationsLimit,
	}
	if err := s.users.CreateCompany(ctx, company); err != nil {
		return nil, err
	}
	user.Company = company

	if err := s.sendOTP(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) sendOTP(ctx context.Context, user *models.Account) error {
	code, err := generateOTP(otpDigits)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, otpKey(user.Email), code, s.otpTTL).Err(); err != nil {
		return fmt.Errorf("failed to store verification code: %w", err)
	}

	go func() {
		if err := s.email.SendOTPEmail(user.Email, user.FirstName, code, s.otpTTL); err != nil {
			s.logger.WithError(err).WithField("user_id", user.ID).Warn("failed to send verification code")
		}
	}()
	return nil
}

// VerifyEmail checks the emailed code and signs the user in.
func (s *AuthService) VerifyEmail(ctx context.Context, email, code string) (*models.AuthResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	stored, err := s.redis.Get(ctx, otpKey(email)).Result()
	if err != nil || stored != strings.TrimSpace(code) {
		return nil, &ValidationError{Fields: map[string]string{"code": "Invalid or expired verification code"}}
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Email not found"}
		}
		return nil, err
	}

	if err := s.users.VerifyEmail(ctx, user.ID); err != nil {
		return nil, err
	}
	user.IsVerified = true

	s.redis.Del(ctx, otpKey(email))

	return s.issueSession(ctx, user)
}

// Login signs in an account of the given tier.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest, accountType string) (*models.AuthResponse, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &UnauthorizedError{Message: "Invalid credentials"}
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, &UnauthorizedError{Message: "Invalid credentials"}
	}

	if user.Type != accountType {
		return nil, &UnauthorizedError{Message: "Invalid credentials"}
	}

	if !user.IsVerified {
		return nil, &ForbiddenError{Message: "Please verify your email before signing in."}
	}

	if !user.IsActive {
		return nil, &UnauthorizedError{Message: "Account is deactivated"}
	}

	s.users.UpdateLastLogin(ctx, user.ID)

	return s.issueSession(ctx, user)
}

// RefreshToken rotates refreshToken and issues a new pair. The token must
// belong to an account of the route's tier.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken, accountType string) (*models.AuthTokens, error) {
	if refreshToken == "" {
		return nil, &UnauthorizedError{Message: "Refresh token is required"}
	}

	userIDStr, err := s.redis.GetDel(ctx, refreshKey(refreshToken)).Result()
	if err != nil {
		return nil, &UnauthorizedError{Message: "Invalid or expired refresh token. Please log in again."}
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID: %w", err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !user.IsActive || user.Type != accountType {
		return nil, &UnauthorizedError{Message: "Invalid or expired refresh token. Please log in again."}
	}

	return s.issueTokens(ctx, user)
}

// Logout revokes refreshToken. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.redis.Del(ctx, refreshKey(refreshToken)).Err()
}

// ResendOTP emails a new code, at most once per cooldown.
func (s *AuthService) ResendOTP(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return &NotFoundError{Message: "Email not found"}
	}

	if user.IsVerified {
		return &ConflictError{Message: "Email is already verified"}
	}

	rateLimitKey := fmt.Sprintf("resend_limit:%s", user.ID.String())
	ok, err := s.redis.SetNX(ctx, rateLimitKey, "1", resendCooldown).Result()
	if err != nil {
		return fmt.Errorf("failed to check resend limit: %w", err)
	}
	if !ok {
		return &RateLimitError{Message: "Please wait 60 seconds before requesting another code"}
	}

	return s.sendOTP(ctx, user)
}

func (s *AuthService) issueSession(ctx context.Context, user *models.Account) (*models.AuthResponse, error) {
	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	return &models.AuthResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    tokens.ExpiresIn,
		User:         user.Profile(),
	}, nil
}

func (s *AuthService) issueTokens(ctx context.Context, user *models.Account) (*models.AuthTokens, error) {
	accessToken, err := s.jwt.GenerateAccessToken(user.ID, user.Email, user.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := generateToken(32)
	if err != nil {
		return nil, err
	}

	err = s.redis.Set(ctx, refreshKey(refreshToken), user.ID.String(), s.refreshTTL).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &models.AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.jwt.TTL.Seconds()),
	}, nil
}

func otpKey(email string) string     { return "otp:" + email }
func refreshKey(token string) string { return "refresh:" + token }

func generateToken(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// generateOTP returns a zero-padded numeric code.
func generateOTP(digits int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}

func validatePassword(pw string) error {
	if len(pw) < 8 {
		return fmt.Errorf("Password must be at least 8 characters")
	}
	hasNumber := false
	for _, ch := range pw {
		if unicode.IsDigit(ch) {
			hasNumber = true
			break
		}
	}
	if !hasNumber {
		return fmt.Errorf("Password must contain at least one number")
	}
	return nil
}
