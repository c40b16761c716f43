package projects

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists projects in PostgreSQL.
type PostgresStore struct {
	pool    *pgxpool.Pool
	agentID string
}

func NewPostgresStore(ctx context.Context, databaseURL, agentID string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool, agentID: agentID}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			session_key TEXT NOT NULL,
			avatar_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_projects_created ON projects (created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

const projectColumns = `id, name, session_key, avatar_id, created_at`

func (s *PostgresStore) Create(ctx context.Context, name, avatarID string) (Project, error) {
	p := newProject(s.agentID, name, avatarID)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO projects (id, name, session_key, avatar_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		p.ID,
		p.Name,
		p.SessionKey,
		p.AvatarID,
		p.CreatedAt,
	)
	if err != nil {
		return Project{}, fmt.Errorf("create project: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Project, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=$1`, id)
	p, err := scanProject(row)
	if err != nil {
		return Project{}, fmt.Errorf("get project %s: %w", id, err)
	}
	return p, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Project, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SetAvatar(ctx context.Context, id, avatarID string) (Project, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE projects SET avatar_id=$2 WHERE id=$1 RETURNING `+projectColumns,
		id,
		avatarID,
	)
	p, err := scanProject(row)
	if err != nil {
		return Project{}, fmt.Errorf("set avatar for project %s: %w", id, err)
	}
	return p, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanProject(row pgx.Row) (Project, error) {
	var p Project
	if err := row.Scan(&p.ID, &p.Name, &p.SessionKey, &p.AvatarID, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, ErrNotFound
		}
		return Project{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}
