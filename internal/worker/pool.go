package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"genstudio/internal/models"
	"genstudio/internal/repository"
	"genstudio/internal/services"
)

const (
	maxAttempts     = 3
	lockTTL         = 10 * time.Minute
	generateTimeout = 5 * time.Minute
)

// Publisher delivers job events to the job's owner.
type Publisher interface {
	PublishUpdate(ctx context.Context, userID uuid.UUID, msg models.WSMessage)
}

// Pool pops generation jobs from Redis and runs them through a Generator.
type Pool struct {
	redis       *redis.Client
	jobs        repository.JobRepository
	users       repository.UserRepository
	generator   services.Generator
	publisher   Publisher
	logger      logrus.FieldLogger
	workerCount int
	pollTimeout time.Duration

	// retryBackoff is the delay before the first retry; it doubles on each
	// further attempt.
	retryBackoff time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// retries holds the payload of every job waiting out its backoff.
	mu      sync.Mutex
	retries map[*time.Timer][]byte
	retryWG sync.WaitGroup
}

func NewPool(
	redisClient *redis.Client,
	jobs repository.JobRepository,
	users repository.UserRepository,
	generator services.Generator,
	publisher Publisher,
	logger logrus.FieldLogger,
	workerCount int,
	pollTimeout time.Duration,
) *Pool {
	if workerCount <= 0 {
		workerCount = 1
	}
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		redis:        redisClient,
		jobs:         jobs,
		users:        users,
		generator:    generator,
		publisher:    publisher,
		logger:       logger,
		workerCount:  workerCount,
		pollTimeout:  pollTimeout,
		retryBackoff: 2 * time.Second,
		ctx:          ctx,
		cancel:       cancel,
		retries:      make(map[*time.Timer][]byte),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.WithField("workers", p.workerCount).Info("worker pool started")
}

// Stop cancels in-flight jobs and waits for every worker to return. Jobs
// still waiting out a retry backoff are queued right away.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()

	p.mu.Lock()
	for t, payload := range p.retries {
		if t.Stop() {
			p.push(payload)
			p.retryWG.Done()
		}
		delete(p.retries, t)
	}
	p.mu.Unlock()
	p.retryWG.Wait()

	p.logger.Info("worker pool stopped")
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	log := p.logger.WithField("worker", id)

	for {
		if p.ctx.Err() != nil {
			return
		}

		result, err := p.redis.BLPop(p.ctx, p.pollTimeout, services.GenerationQueue).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && p.ctx.Err() == nil {
				log.WithError(err).Warn("failed to pop generation queue")
				time.Sleep(p.pollTimeout)
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		var queued models.Job
		if err := json.Unmarshal([]byte(result[1]), &queued); err != nil {
			log.WithError(err).Error("failed to parse queued job")
			continue
		}

		p.run(log, queued.ID)
	}
}

// run processes one job under a Redis lock so a job queued twice runs once.
func (p *Pool) run(log logrus.FieldLogger, jobID uuid.UUID) {
	ctx := p.ctx
	lockKey := "job_lock:" + jobID.String()
	locked, err := p.redis.SetNX(ctx, lockKey, "1", lockTTL).Result()
	if err != nil || !locked {
		return
	}
	unlock := func() { p.redis.Del(context.Background(), lockKey) }

	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		unlock()
		log.WithError(err).WithField("job_id", jobID).Error("failed to load job")
		return
	}
	if job.Done() {
		unlock()
		return
	}

	log = log.WithFields(logrus.Fields{"job_id": job.ID, "category": job.Request.Category, "attempt": job.RetryCount + 1})
	log.Info("processing job")

	// The lock is released before any requeue so the next attempt can take it.
	err = p.process(ctx, job)
	unlock()
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("job interrupted by shutdown, requeueing")
			p.requeue(job)
			return
		}
		p.handleFailure(log, job, err)
		return
	}
	log.Info("job completed")
}

func (p *Pool) process(ctx context.Context, job *models.Job) error {
	if err := p.jobs.UpdateStatus(ctx, job.ID, models.JobProcessing); err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}
	p.step(ctx, job, 1, "Preparing your request")

	user, err := p.users.GetByID(ctx, job.UserID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}

	p.step(ctx, job, 2, "Generating content")

	genCtx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()
	out, err := p.generator.Generate(genCtx, job.Request, user.Company)
	if err != nil {
		return err
	}

	p.step(ctx, job, 3, "Saving result")

	if err := p.jobs.SetResult(ctx, job.ID, out.Text, out.ImageURL); err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	if err := p.jobs.UpdateStatus(ctx, job.ID, models.JobCompleted); err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}
	if user.Company != nil {
		if err := p.users.IncrementUsage(ctx, user.Company.ID); err != nil {
			p.logger.WithError(err).WithField("job_id", job.ID).Warn("failed to record usage")
		}
	}

	p.publisher.PublishUpdate(ctx, job.UserID, models.WSMessage{
		Type: models.EventCompleted,
		Payload: models.CompletedEvent{
			JobID:    job.ID,
			Result:   out.Text,
			ImageURL: out.ImageURL,
		},
	})
	return nil
}

func (p *Pool) step(ctx context.Context, job *models.Job, n int, name string) {
	p.publisher.PublishUpdate(ctx, job.UserID, models.WSMessage{
		Type: models.EventStatusUpdate,
		Payload: models.StatusUpdate{
			JobID:    job.ID,
			Step:     n,
			StepName: name,
		},
	})
}

// requeue puts an interrupted job back at the head of the queue for the
// next process to pick up.
func (p *Pool) requeue(job *models.Job) {
	ctx := context.Background()
	p.jobs.UpdateStatus(ctx, job.ID, models.JobPending)
	payload, _ := json.Marshal(job)
	p.push(payload)
}

func (p *Pool) push(payload []byte) {
	if err := p.redis.LPush(context.Background(), services.GenerationQueue, payload).Err(); err != nil {
		p.logger.WithError(err).Error("failed to requeue job")
	}
}

// retryLater queues payload once backoff has passed, or at Stop if that
// comes first.
func (p *Pool) retryLater(payload []byte, backoff time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.retryWG.Add(1)
	var t *time.Timer
	t = time.AfterFunc(backoff, func() {
		defer p.retryWG.Done()
		p.mu.Lock()
		delete(p.retries, t)
		p.mu.Unlock()
		p.push(payload)
	})
	p.retries[t] = payload
}

func (p *Pool) handleFailure(log logrus.FieldLogger, job *models.Job, err error) {
	ctx := context.Background()
	job.RetryCount++
	errMsg := err.Error()

	if job.RetryCount < maxAttempts {
		log.WithError(err).Warn("job failed, retrying")
		p.jobs.UpdateStatus(ctx, job.ID, models.JobPending)
		p.jobs.UpdateError(ctx, job.ID, errMsg, job.RetryCount)

		payload, _ := json.Marshal(job)
		p.retryLater(payload, p.retryBackoff<<uint(job.RetryCount-1))
		return
	}

	log.WithError(err).Error("job failed permanently")
	p.jobs.UpdateStatus(ctx, job.ID, models.JobFailed)
	p.jobs.UpdateError(ctx, job.ID, errMsg, job.RetryCount)

	p.publisher.PublishUpdate(ctx, job.UserID, models.WSMessage{
		Type: models.EventError,
		Payload: models.ErrorEvent{
			JobID:        job.ID,
			ErrorCode:    "GENERATION_FAILED",
			ErrorMessage: errMsg,
		},
	})
}
