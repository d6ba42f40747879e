package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists visitor memory in PostgreSQL, one row per visitor.
// Used when several installations share a backing database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS visitor_memory (
			visitor_id TEXT PRIMARY KEY,
			payload JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, visitorID string) Memory {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM visitor_memory WHERE visitor_id=$1`,
		visitorID,
	).Scan(&raw)
	if err != nil {
		return NewMemory(visitorID)
	}

	var m Memory
	if err := json.Unmarshal(raw, &m); err != nil {
		log.Printf("memory: visitor %s payload is corrupt, starting fresh: %v", visitorID, err)
		return NewMemory(visitorID)
	}
	if m.VisitorID == "" {
		m.VisitorID = visitorID
	}
	return m
}

func (s *PostgresStore) Save(ctx context.Context, m Memory) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal memory: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO visitor_memory (visitor_id, payload, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (visitor_id) DO UPDATE SET payload=$2, updated_at=$3`,
		m.VisitorID,
		raw,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save memory: %w", err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context, visitorID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM visitor_memory WHERE visitor_id=$1`, visitorID)
	if err != nil {
		return fmt.Errorf("clear memory: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
