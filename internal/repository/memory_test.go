package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"genstudio/internal/models"
)

var (
	_ UserRepository = (*UserRepo)(nil)
	_ UserRepository = (*MemoryUserRepo)(nil)
	_ JobRepository  = (*JobRepo)(nil)
	_ JobRepository  = (*MemoryJobRepo)(nil)
)

func TestMemoryUserRepo_CompanyAttached(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepo()

	user := &models.Account{Email: "chef@bistro.fr", Type: models.AccountAI}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	company := &models.CompanyProfile{UserID: user.ID, CompanyName: "Bistro", Plan: "free", GenerationsLimit: 10}
	if err := repo.CreateCompany(ctx, company); err != nil {
		t.Fatalf("CreateCompany failed: %v", err)
	}
	if err := repo.IncrementUsage(ctx, company.ID); err != nil {
		t.Fatalf("IncrementUsage failed: %v", err)
	}

	got, err := repo.GetByEmail(ctx, "CHEF@bistro.fr")
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	if got.Company == nil || got.Company.ID != company.ID {
		t.Fatalf("Expected company attached, got %+v", got.Company)
	}
	if got.Company.GenerationsUsed != 1 {
		t.Errorf("Expected usage 1, got %d", got.Company.GenerationsUsed)
	}

	got.FirstName = "mutated"
	again, _ := repo.GetByID(ctx, user.ID)
	if again.FirstName == "mutated" {
		t.Error("Expected repository to return copies")
	}
}

func TestMemoryUserRepo_MissingRows(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepo()

	if _, err := repo.GetByID(ctx, uuid.New()); !errors.Is(err, pgx.ErrNoRows) {
		t.Errorf("Expected pgx.ErrNoRows, got %v", err)
	}
	if _, err := repo.GetByEmail(ctx, "nobody@example.com"); !errors.Is(err, pgx.ErrNoRows) {
		t.Errorf("Expected pgx.ErrNoRows, got %v", err)
	}
	if err := repo.VerifyEmail(ctx, uuid.New()); !errors.Is(err, pgx.ErrNoRows) {
		t.Errorf("Expected pgx.ErrNoRows, got %v", err)
	}
}

func TestMemoryJobRepo_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryJobRepo()
	userID := uuid.New()

	first := &models.Job{UserID: userID}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	time.Sleep(time.Millisecond)
	second := &models.Job{UserID: userID}
	repo.Create(ctx, second)
	repo.Create(ctx, &models.Job{UserID: uuid.New()})

	if err := repo.SetResult(ctx, first.ID, "texte", ""); err != nil {
		t.Fatalf("SetResult failed: %v", err)
	}
	if err := repo.UpdateStatus(ctx, first.ID, models.JobCompleted); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	got, _ := repo.GetByID(ctx, first.ID)
	if got.Status != models.JobCompleted || got.CompletedAt == nil || got.Result != "texte" {
		t.Errorf("Unexpected job %+v", got)
	}

	jobs, _ := repo.ListByUser(ctx, userID, 10)
	if len(jobs) != 2 || jobs[0].ID != second.ID {
		t.Errorf("Expected the user's 2 jobs newest first, got %+v", jobs)
	}
}
