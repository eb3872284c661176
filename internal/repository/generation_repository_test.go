package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/basel-ax/fluxfaces/internal/domain"
)

// openTestDB connects to FLUXFACES_TEST_DSN and gives each test a clean table.
func openTestDB(t *testing.T) *PostgresGenerationRepository {
	t.Helper()
	dsn := os.Getenv("FLUXFACES_TEST_DSN")
	if dsn == "" {
		t.Skip("FLUXFACES_TEST_DSN not set")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := NewPostgresGenerationRepository(db)
	ctx := context.Background()
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema error: %v", err)
	}
	if _, err := db.ExecContext(ctx, `TRUNCATE generations RESTART IDENTITY`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return repo
}

func TestGenerationLifecycle(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()

	g, err := repo.Enqueue(ctx, "studio portrait")
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	if g.State != domain.StateReadyToSubmit {
		t.Fatalf("unexpected state: %s", g.State)
	}
	if _, err := uuid.Parse(g.RequestID); err != nil {
		t.Fatalf("request id is not a uuid: %q", g.RequestID)
	}

	ready, err := repo.GetAllReadyToSubmit(ctx, 10)
	if err != nil || len(ready) != 1 {
		t.Fatalf("GetAllReadyToSubmit: %v %v", ready, err)
	}

	if err := repo.MarkSubmitted(ctx, g.ID, "job-1"); err != nil {
		t.Fatalf("MarkSubmitted error: %v", err)
	}
	submitted, err := repo.GetAllSubmitted(ctx, 10)
	if err != nil || len(submitted) != 1 || submitted[0].JobID != "job-1" {
		t.Fatalf("GetAllSubmitted: %v %v", submitted, err)
	}

	if err := repo.MarkCompleted(ctx, g.ID, []string{"a.png", "b.png"}); err != nil {
		t.Fatalf("MarkCompleted error: %v", err)
	}
	got, err := repo.Get(ctx, g.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.State != domain.StateCompleted || len(got.OutputPaths) != 2 {
		t.Fatalf("unexpected row: %+v", got)
	}
}

func TestResetJobAndMissingRows(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()

	g, err := repo.Enqueue(ctx, "p")
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	if err := repo.MarkSubmitted(ctx, g.ID, "job-x"); err != nil {
		t.Fatalf("MarkSubmitted error: %v", err)
	}
	if err := repo.ResetJob(ctx, g.ID); err != nil {
		t.Fatalf("ResetJob error: %v", err)
	}
	got, _ := repo.Get(ctx, g.ID)
	if got.JobID != "" || got.State != domain.StateReadyToSubmit {
		t.Fatalf("job not reset: %+v", got)
	}

	if err := repo.UpdateState(ctx, 9999, domain.StateFailed, "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.Get(ctx, 9999); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
