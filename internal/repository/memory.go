package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"genstudio/internal/models"
)

// MemoryUserRepo is a UserRepository for running without Postgres.
type MemoryUserRepo struct {
	mu        sync.RWMutex
	users     map[uuid.UUID]*models.Account
	companies map[uuid.UUID]*models.CompanyProfile
}

func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		users:     make(map[uuid.UUID]*models.Account),
		companies: make(map[uuid.UUID]*models.CompanyProfile),
	}
}

func (r *MemoryUserRepo) Create(ctx context.Context, user *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user.ID = uuid.New()
	user.IsActive = true
	user.CreatedAt = time.Now()

	stored := *user
	stored.Company = nil
	r.users[user.ID] = &stored
	return nil
}

func (r *MemoryUserRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return r.withCompany(u), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *MemoryUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return r.withCompany(u), nil
}

// withCompany returns a copy of u with its company attached. Callers hold mu.
func (r *MemoryUserRepo) withCompany(u *models.Account) *models.Account {
	out := *u
	for _, c := range r.companies {
		if c.UserID == u.ID {
			company := *c
			out.Company = &company
			break
		}
	}
	return &out
}

func (r *MemoryUserRepo) modify(id uuid.UUID, fn func(u *models.Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	fn(u)
	return nil
}

func (r *MemoryUserRepo) VerifyEmail(ctx context.Context, id uuid.UUID) error {
	return r.modify(id, func(u *models.Account) { u.IsVerified = true })
}

func (r *MemoryUserRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	return r.modify(id, func(u *models.Account) { u.LastLoginAt = &now })
}

func (r *MemoryUserRepo) Update(ctx context.Context, user *models.Account) error {
	return r.modify(user.ID, func(u *models.Account) {
		u.FirstName = user.FirstName
		u.LastName = user.LastName
		u.Phone = user.Phone
		u.AvatarURL = user.AvatarURL
		u.HasFinishedOnboarding = user.HasFinishedOnboarding
	})
}

func (r *MemoryUserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return r.modify(id, func(u *models.Account) { u.PasswordHash = passwordHash })
}

func (r *MemoryUserRepo) CreateCompany(ctx context.Context, company *models.CompanyProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	company.ID = uuid.New()
	stored := *company
	r.companies[company.ID] = &stored
	return nil
}

func (r *MemoryUserRepo) GetCompany(ctx context.Context, id uuid.UUID) (*models.CompanyProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.companies[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *c
	return &out, nil
}

func (r *MemoryUserRepo) UpdateCompany(ctx context.Context, company *models.CompanyProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.companies[company.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	c.CompanyName = company.CompanyName
	c.Activity = company.Activity
	c.LogoURL = company.LogoURL
	c.Plan = company.Plan
	c.GenerationsLimit = company.GenerationsLimit
	return nil
}

func (r *MemoryUserRepo) IncrementUsage(ctx context.Context, companyID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.companies[companyID]
	if !ok {
		return pgx.ErrNoRows
	}
	c.GenerationsUsed++
	return nil
}

// MemoryJobRepo is a JobRepository for running without Postgres.
type MemoryJobRepo struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*models.Job
}

func NewMemoryJobRepo() *MemoryJobRepo {
	return &MemoryJobRepo{jobs: make(map[uuid.UUID]*models.Job)}
}

func (r *MemoryJobRepo) Create(ctx context.Context, j *models.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j.ID = uuid.New()
	j.Status = models.JobPending
	j.RetryCount = 0
	j.CreatedAt = time.Now()

	stored := *j
	r.jobs[j.ID] = &stored
	return nil
}

func (r *MemoryJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.jobs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *j
	return &out, nil
}

func (r *MemoryJobRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobs := make([]models.Job, 0)
	for _, j := range r.jobs {
		if j.UserID == userID {
			jobs = append(jobs, *j)
		}
	}
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].CreatedAt.After(jobs[b].CreatedAt) })
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (r *MemoryJobRepo) modify(id uuid.UUID, fn func(j *models.Job)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return pgx.ErrNoRows
	}
	fn(j)
	return nil
}

func (r *MemoryJobRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	return r.modify(id, func(j *models.Job) {
		j.Status = status
		if status == models.JobCompleted || status == models.JobFailed {
			now := time.Now()
			j.CompletedAt = &now
		}
	})
}

func (r *MemoryJobRepo) UpdateError(ctx context.Context, id uuid.UUID, errMsg string, retryCount int) error {
	return r.modify(id, func(j *models.Job) {
		j.ErrorMessage = &errMsg
		j.RetryCount = retryCount
	})
}

func (r *MemoryJobRepo) SetResult(ctx context.Context, id uuid.UUID, result, imageURL string) error {
	return r.modify(id, func(j *models.Job) {
		j.Result = result
		j.ImageURL = imageURL
	})
}
