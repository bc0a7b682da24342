package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"genstudio/internal/models"
)

// UserRepository stores accounts and their company profiles. Lookups of
// missing rows return pgx.ErrNoRows whatever the backing store.
type UserRepository interface {
	Create(ctx context.Context, user *models.Account) error
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	VerifyEmail(ctx context.Context, id uuid.UUID) error
	UpdateLastLogin(ctx context.Context, id uuid.UUID) error
	Update(ctx context.Context, user *models.Account) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error

	CreateCompany(ctx context.Context, company *models.CompanyProfile) error
	GetCompany(ctx context.Context, id uuid.UUID) (*models.CompanyProfile, error)
	UpdateCompany(ctx context.Context, company *models.CompanyProfile) error
	IncrementUsage(ctx context.Context, companyID uuid.UUID) error
}

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `id, email, password_hash, first_name, last_name, phone, avatar_url, type,
	is_verified, is_active, has_finished_onboarding, created_at, last_login_at`

func (r *UserRepo) Create(ctx context.Context, user *models.Account) error {
	query := `
		INSERT INTO users (id, email, password_hash, first_name, last_name, phone, type, is_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	user.ID = uuid.New()
	user.IsActive = true

	return r.pool.QueryRow(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.Phone, user.Type, user.IsVerified,
	).Scan(&user.CreatedAt)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1", email)
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
}

func (r *UserRepo) getOne(ctx context.Context, query string, arg interface{}) (*models.Account, error) {
	user := &models.Account{}
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.FirstName, &user.LastName, &user.Phone,
		&user.AvatarURL, &user.Type, &user.IsVerified, &user.IsActive, &user.HasFinishedOnboarding,
		&user.CreatedAt, &user.LastLoginAt,
	)
	if err != nil {
		return nil, err
	}

	company, err := r.companyByUser(ctx, user.ID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	user.Company = company
	return user, nil
}

func (r *UserRepo) VerifyEmail(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "UPDATE users SET is_verified = TRUE WHERE id = $1", id)
	return err
}

func (r *UserRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "UPDATE users SET last_login_at = $1 WHERE id = $2", time.Now(), id)
	return err
}

func (r *UserRepo) Update(ctx context.Context, user *models.Account) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET first_name = $1, last_name = $2, phone = $3, avatar_url = $4,
		 has_finished_onboarding = $5 WHERE id = $6`,
		user.FirstName, user.LastName, user.Phone, user.AvatarURL, user.HasFinishedOnboarding, user.ID,
	)
	return err
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	_, err := r.pool.Exec(ctx, "UPDATE users SET password_hash = $1 WHERE id = $2", passwordHash, id)
	return err
}

const companyColumns = `id, user_id, company_name, activity, logo_url, plan, generations_used, generations_limit`

func (r *UserRepo) CreateCompany(ctx context.Context, company *models.CompanyProfile) error {
	company.ID = uuid.New()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO company_profiles (id, user_id, company_name, activity, plan, generations_limit)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		company.ID, company.UserID, company.CompanyName, company.Activity, company.Plan, company.GenerationsLimit,
	)
	return err
}

func (r *UserRepo) GetCompany(ctx context.Context, id uuid.UUID) (*models.CompanyProfile, error) {
	return scanCompany(r.pool.QueryRow(ctx, "SELECT "+companyColumns+" FROM company_profiles WHERE id = $1", id))
}

func (r *UserRepo) companyByUser(ctx context.Context, userID uuid.UUID) (*models.CompanyProfile, error) {
	return scanCompany(r.pool.QueryRow(ctx, "SELECT "+companyColumns+" FROM company_profiles WHERE user_id = $1", userID))
}

func scanCompany(row pgx.Row) (*models.CompanyProfile, error) {
	c := &models.CompanyProfile{}
	err := row.Scan(&c.ID, &c.UserID, &c.CompanyName, &c.Activity, &c.LogoURL, &c.Plan,
		&c.GenerationsUsed, &c.GenerationsLimit)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *UserRepo) UpdateCompany(ctx context.Context, company *models.CompanyProfile) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE company_profiles SET company_name = $1, activity = $2, logo_url = $3, plan = $4,
		 generations_limit = $5 WHERE id = $6`,
		company.CompanyName, company.Activity, company.LogoURL, company.Plan, company.GenerationsLimit, company.ID,
	)
	return err
}

func (r *UserRepo) IncrementUsage(ctx context.Context, companyID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE company_profiles SET generations_used = generations_used + 1 WHERE id = $1", companyID)
	return err
}
