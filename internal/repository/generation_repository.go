package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/basel-ax/fluxfaces/internal/domain"
)

// Schema creates the ledger table when missing
const Schema = `
CREATE TABLE IF NOT EXISTS generations (
	id           SERIAL PRIMARY KEY,
	request_id   UUID NOT NULL UNIQUE,
	prompt       TEXT NOT NULL,
	job_id       TEXT NOT NULL DEFAULT '',
	state        TEXT NOT NULL DEFAULT 'ReadyToSubmit',
	output_paths TEXT[] NOT NULL DEFAULT '{}',
	error        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS generations_state_idx ON generations (state, created_at);
`

// GenerationRepository defines the interface for ledger access
type GenerationRepository interface {
	Enqueue(ctx context.Context, prompt string) (*domain.Generation, error)
	GetAllReadyToSubmit(ctx context.Context, limit int) ([]*domain.Generation, error)
	GetAllSubmitted(ctx context.Context, limit int) ([]*domain.Generation, error)
	MarkSubmitted(ctx context.Context, id int, jobID string) error
	MarkCompleted(ctx context.Context, id int, outputPaths []string) error
	UpdateState(ctx context.Context, id int, state domain.GenerationState, errText string) error
	ResetJob(ctx context.Context, id int) error
}

// PostgresGenerationRepository implements GenerationRepository for PostgreSQL
type PostgresGenerationRepository struct {
	db *sql.DB
}

// NewPostgresGenerationRepository creates a new PostgreSQL ledger repository
func NewPostgresGenerationRepository(db *sql.DB) *PostgresGenerationRepository {
	return &PostgresGenerationRepository{db: db}
}

// EnsureSchema creates the generations table
func (r *PostgresGenerationRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const selectColumns = `id, request_id, prompt, job_id, state, output_paths, error, created_at, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanGeneration(row scanner) (*domain.Generation, error) {
	var (
		g     domain.Generation
		state string
		paths pq.StringArray
	)
	if err := row.Scan(&g.ID, &g.RequestID, &g.Prompt, &g.JobID, &state, &paths, &g.Error, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	g.State = domain.GenerationState(state)
	g.OutputPaths = []string(paths)
	return &g, nil
}

// Enqueue stores a new prompt ready for submission
func (r *PostgresGenerationRepository) Enqueue(ctx context.Context, prompt string) (*domain.Generation, error) {
	query := `
		INSERT INTO generations (request_id, prompt, state)
		VALUES ($1, $2, $3)
		RETURNING ` + selectColumns

	g, err := scanGeneration(r.db.QueryRowContext(ctx, query, uuid.NewString(), prompt, string(domain.StateReadyToSubmit)))
	if err != nil {
		return nil, fmt.Errorf("enqueue generation: %w", err)
	}
	return g, nil
}

// Get retrieves one generation by id
func (r *PostgresGenerationRepository) Get(ctx context.Context, id int) (*domain.Generation, error) {
	query := `SELECT ` + selectColumns + ` FROM generations WHERE id = $1`

	g, err := scanGeneration(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

// GetAllReadyToSubmit retrieves prompts waiting for submission, oldest first
func (r *PostgresGenerationRepository) GetAllReadyToSubmit(ctx context.Context, limit int) ([]*domain.Generation, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM generations
		WHERE state = $1
		AND prompt != ''
		ORDER BY created_at ASC
		LIMIT $2
	`
	return r.list(ctx, query, string(domain.StateReadyToSubmit), limit)
}

// GetAllSubmitted retrieves generations with a job in flight, oldest first
func (r *PostgresGenerationRepository) GetAllSubmitted(ctx context.Context, limit int) ([]*domain.Generation, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM generations
		WHERE state = $1
		AND job_id != ''
		ORDER BY created_at ASC
		LIMIT $2
	`
	return r.list(ctx, query, string(domain.StateSubmitted), limit)
}

func (r *PostgresGenerationRepository) list(ctx context.Context, query string, state string, limit int) ([]*domain.Generation, error) {
	rows, err := r.db.QueryContext(ctx, query, state, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Generation
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// MarkSubmitted records the job id of a submitted generation
func (r *PostgresGenerationRepository) MarkSubmitted(ctx context.Context, id int, jobID string) error {
	query := `
		UPDATE generations
		SET job_id = $1, state = $2, error = '', updated_at = $3
		WHERE id = $4
	`
	return r.exec(ctx, query, jobID, string(domain.StateSubmitted), time.Now(), id)
}

// MarkCompleted stores the saved image paths of a finished generation
func (r *PostgresGenerationRepository) MarkCompleted(ctx context.Context, id int, outputPaths []string) error {
	query := `
		UPDATE generations
		SET output_paths = $1, state = $2, updated_at = $3
		WHERE id = $4
	`
	return r.exec(ctx, query, pq.Array(outputPaths), string(domain.StateCompleted), time.Now(), id)
}

// UpdateState updates the state and error text of a generation
func (r *PostgresGenerationRepository) UpdateState(ctx context.Context, id int, state domain.GenerationState, errText string) error {
	query := `
		UPDATE generations
		SET state = $1, error = $2, updated_at = $3
		WHERE id = $4
	`
	return r.exec(ctx, query, string(state), errText, time.Now(), id)
}

// ResetJob clears the job id and puts the generation back in the submit queue
func (r *PostgresGenerationRepository) ResetJob(ctx context.Context, id int) error {
	query := `
		UPDATE generations
		SET job_id = '', state = $1, updated_at = $2
		WHERE id = $3
	`
	return r.exec(ctx, query, string(domain.StateReadyToSubmit), time.Now(), id)
}

func (r *PostgresGenerationRepository) exec(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
