package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"genstudio/internal/models"
	"genstudio/internal/repository"
	"genstudio/internal/wizard"
)

// GenerationQueue is the Redis list the worker pool pops jobs from.
const GenerationQueue = "queue:generation"

const listLimit = 50

type GenerationService struct {
	jobs   repository.JobRepository
	users  repository.UserRepository
	redis  *redis.Client
	flow   *wizard.Flow
	logger logrus.FieldLogger
}

func NewGenerationService(jobs repository.JobRepository, users repository.UserRepository, redisClient *redis.Client, flow *wizard.Flow, logger logrus.FieldLogger) *GenerationService {
	if flow == nil {
		flow = wizard.NewFlow(nil)
	}
	return &GenerationService{
		jobs:   jobs,
		users:  users,
		redis:  redisClient,
		flow:   flow,
		logger: logger,
	}
}

// Submit validates req against the wizard catalog, checks the plan quota and
// queues a job.
func (s *GenerationService) Submit(ctx context.Context, userID uuid.UUID, req models.GenerationRequest) (*models.Job, error) {
	normalized, err := s.flow.Request(wizard.Selection{
		SelectedJob:      req.Job,
		SelectedFunction: req.Function,
		SelectedCategory: req.Category,
		UserQuery:        req.Query,
		SelectedStyle:    req.Style,
		UploadedImageURI: req.ReferenceImage,
		WorkflowAnswers:  req.WorkflowAnswers,
	})
	if err != nil {
		msg := strings.TrimPrefix(err.Error(), wizard.ErrIncomplete.Error()+": ")
		return nil, &ValidationError{Fields: map[string]string{"request": msg}}
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "User not found"}
		}
		return nil, err
	}
	if user.Company == nil {
		return nil, &ForbiddenError{Message: "Complete your company profile before generating content"}
	}
	if c := user.Company; c.GenerationsLimit > 0 && c.GenerationsUsed >= c.GenerationsLimit {
		return nil, &ForbiddenError{Message: "Generation limit reached for your plan"}
	}

	job := &models.Job{UserID: userID, Request: normalized}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	if err := s.Enqueue(ctx, job); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{"job_id": job.ID, "user_id": userID, "category": normalized.Category}).Info("generation queued")
	return job, nil
}

// Enqueue pushes job onto the generation queue.
func (s *GenerationService) Enqueue(ctx context.Context, job *models.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	if err := s.redis.RPush(ctx, GenerationQueue, payload).Err(); err != nil {
		return fmt.Errorf("failed to queue job: %w", err)
	}
	return nil
}

// Get returns one of userID's jobs.
func (s *GenerationService) Get(ctx context.Context, userID, jobID uuid.UUID) (*models.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Generation not found"}
		}
		return nil, err
	}
	if job.UserID != userID {
		return nil, &NotFoundError{Message: "Generation not found"}
	}
	return job, nil
}

func (s *GenerationService) List(ctx context.Context, userID uuid.UUID) ([]models.Job, error) {
	return s.jobs.ListByUser(ctx, userID, listLimit)
}

// PublishUpdate sends a job event to the user's websocket connections via
// Redis pub/sub.
func (s *GenerationService) PublishUpdate(ctx context.Context, userID uuid.UUID, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.WithError(err).Error("failed to encode job event")
		return
	}
	if err := s.redis.Publish(ctx, models.UpdatesChannel(userID), data).Err(); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("failed to publish job event")
	}
}
