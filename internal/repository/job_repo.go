package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"genstudio/internal/models"
)

// JobRepository stores generation jobs.
type JobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Job, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateError(ctx context.Context, id uuid.UUID, errMsg string, retryCount int) error
	SetResult(ctx context.Context, id uuid.UUID, result, imageURL string) error
}

type JobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

const jobColumns = `id, user_id, request_json, status, result, image_url, retry_count, error_message, created_at, completed_at`

func (r *JobRepo) Create(ctx context.Context, j *models.Job) error {
	j.ID = uuid.New()
	j.Status = models.JobPending
	j.RetryCount = 0

	request, err := json.Marshal(j.Request)
	if err != nil {
		return fmt.Errorf("failed to encode job request: %w", err)
	}

	query := `INSERT INTO generation_jobs (id, user_id, request_json, status, retry_count)
		VALUES ($1, $2, $3, $4, $5) RETURNING created_at`

	return r.pool.QueryRow(ctx, query, j.ID, j.UserID, request, j.Status, j.RetryCount).Scan(&j.CreatedAt)
}

func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+jobColumns+" FROM generation_jobs WHERE id = $1", id)
	return scanJob(row.Scan)
}

// ListByUser returns the user's most recent jobs first.
func (r *JobRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Job, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+jobColumns+" FROM generation_jobs WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2",
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]models.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func scanJob(scan func(dest ...interface{}) error) (*models.Job, error) {
	j := &models.Job{}
	var request []byte
	err := scan(&j.ID, &j.UserID, &request, &j.Status, &j.Result, &j.ImageURL,
		&j.RetryCount, &j.ErrorMessage, &j.CreatedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(request, &j.Request); err != nil {
		return nil, fmt.Errorf("failed to decode job request: %w", err)
	}
	return j, nil
}

func (r *JobRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	if status == models.JobCompleted || status == models.JobFailed {
		_, err := r.pool.Exec(ctx,
			"UPDATE generation_jobs SET status = $1, completed_at = $2 WHERE id = $3",
			status, time.Now(), id)
		return err
	}
	_, err := r.pool.Exec(ctx, "UPDATE generation_jobs SET status = $1 WHERE id = $2", status, id)
	return err
}

func (r *JobRepo) UpdateError(ctx context.Context, id uuid.UUID, errMsg string, retryCount int) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE generation_jobs SET error_message = $1, retry_count = $2 WHERE id = $3",
		errMsg, retryCount, id,
	)
	return err
}

func (r *JobRepo) SetResult(ctx context.Context, id uuid.UUID, result, imageURL string) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE generation_jobs SET result = $1, image_url = $2 WHERE id = $3",
		result, imageURL, id,
	)
	return err
}
