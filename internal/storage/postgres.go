package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"firefly/internal/metrics"
	"firefly/internal/models"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS deploys (
		deploy_id    TEXT PRIMARY KEY,
		deployer     TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL,
		cost         BIGINT NOT NULL DEFAULT 0,
		phlo_limit   BIGINT NOT NULL DEFAULT 0,
		term_size    INTEGER NOT NULL DEFAULT 0,
		submitted_at TIMESTAMPTZ,
		finalized_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS deploys_deployer_idx ON deploys (deployer, submitted_at DESC)`,
}

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository and makes sure the journal
// table exists
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}
	if err := r.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

func (r *PostgresRepository) ensureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// SaveSubmittedDeploy saves a submitted deploy to the database
func (r *PostgresRepository) SaveSubmittedDeploy(ctx context.Context, record *models.DeployRecord) error {
	defer observeWrite(time.Now())

	query := `
		INSERT INTO deploys (
			deploy_id, deployer, status, phlo_limit, term_size, submitted_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (deploy_id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		string(record.DeployID),
		record.Deployer,
		string(models.DeploySubmitted),
		int64(record.PhloLimit),
		record.TermSize,
		record.SubmittedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to save submitted deploy: %w", err)
	}

	return nil
}

// MarkDeployFinalized upserts the finalization outcome of a deploy
func (r *PostgresRepository) MarkDeployFinalized(ctx context.Context, record *models.DeployRecord) error {
	defer observeWrite(time.Now())

	query := `
		INSERT INTO deploys (
			deploy_id, deployer, status, cost, finalized_at
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (deploy_id) DO UPDATE SET
			status = EXCLUDED.status,
			cost = EXCLUDED.cost,
			finalized_at = EXCLUDED.finalized_at,
			deployer = CASE WHEN deploys.deployer = '' THEN EXCLUDED.deployer ELSE deploys.deployer END
	`

	_, err := r.pool.Exec(ctx, query,
		string(record.DeployID),
		record.Deployer,
		string(record.Status),
		int64(record.Cost),
		record.FinalizedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to mark deploy finalized: %w", err)
	}

	return nil
}

const selectDeploy = `
	SELECT
		deploy_id, deployer, status, cost, phlo_limit, term_size,
		submitted_at, finalized_at
	FROM deploys
`

// GetDeploy retrieves a journaled deploy by id
func (r *PostgresRepository) GetDeploy(ctx context.Context, id models.DeployID) (*models.DeployRecord, error) {
	row := r.pool.QueryRow(ctx, selectDeploy+` WHERE deploy_id = $1`, string(id))

	record, err := scanDeploy(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrDeployNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deploy: %w", err)
	}

	return record, nil
}

// ListWalletDeploys lists the deploys of a wallet, newest first, with pagination
func (r *PostgresRepository) ListWalletDeploys(ctx context.Context, deployer string, limit, offset int) ([]*models.DeployRecord, error) {
	query := selectDeploy + `
		WHERE deployer = $1
		ORDER BY COALESCE(submitted_at, finalized_at) DESC, deploy_id
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, deployer, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet deploys: %w", err)
	}
	defer rows.Close()

	var records []*models.DeployRecord

	for rows.Next() {
		record, err := scanDeploy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deploy: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deploys: %w", err)
	}

	return records, nil
}

func scanDeploy(row pgx.Row) (*models.DeployRecord, error) {
	var (
		record    models.DeployRecord
		id        string
		status    string
		cost      int64
		phloLimit int64
	)

	err := row.Scan(
		&id,
		&record.Deployer,
		&status,
		&cost,
		&phloLimit,
		&record.TermSize,
		&record.SubmittedAt,
		&record.FinalizedAt,
	)
	if err != nil {
		return nil, err
	}

	record.DeployID = models.DeployID(id)
	record.Status = models.DeployStatus(status)
	record.Cost = uint64(cost)
	record.PhloLimit = uint64(phloLimit)
	return &record, nil
}

func observeWrite(start time.Time) {
	metrics.DatabaseWriteDuration.Observe(time.Since(start).Seconds())
}

// Ping checks if the database connection is alive
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
