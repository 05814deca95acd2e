package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"livequiz-service/internal/domain"
)

// ResultsWriter archives final session results as JSONB rows. This is the
// write side of the external historical store; the engine never reads it.
type ResultsWriter struct {
	pool *pgxpool.Pool
}

func NewResultsWriter(pool *pgxpool.Pool) *ResultsWriter {
	return &ResultsWriter{pool: pool}
}

func (w *ResultsWriter) ArchiveResults(ctx context.Context, res domain.SessionResults) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal session results: %w", err)
	}
	_, err = w.pool.Exec(ctx,
		`INSERT INTO session_results (session_id, quiz_id, ended_at, data)
		 VALUES ($1, $2, $3, $4::jsonb)
		 ON CONFLICT (session_id) DO NOTHING`,
		res.SessionID, res.QuizID, res.EndedAt, data,
	)
	if err != nil {
		return fmt.Errorf("insert session results: %w", err)
	}
	return nil
}
