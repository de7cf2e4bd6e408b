package storage

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// CheckpointStore keeps completed combination keys per run in the database
// itself, so a crashed grid run resumes without any out-of-band state file.
type CheckpointStore struct {
	pool *pgxpool.Pool
}

func NewCheckpointStore(pool *pgxpool.Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

// Load returns the set of combination keys already completed for a run.
func (s *CheckpointStore) Load(ctx context.Context, runID string) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT combination_key FROM grid_checkpoints WHERE run_id = $1`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	done := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		done[key] = struct{}{}
	}
	return done, rows.Err()
}

// Append records a batch of newly completed combination keys.
func (s *CheckpointStore) Append(ctx context.Context, runID string, keys []string) error {
	batch := &pgx.Batch{}
	for _, key := range keys {
		batch.Queue(`
			INSERT INTO grid_checkpoints (run_id, combination_key)
			VALUES ($1, $2)
			ON CONFLICT (run_id, combination_key) DO NOTHING`,
			runID, key)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range keys {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// Clear drops a run's checkpoint after full successful completion.
func (s *CheckpointStore) Clear(ctx context.Context, runID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM grid_checkpoints WHERE run_id = $1`, runID)
	return err
}
