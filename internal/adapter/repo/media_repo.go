package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"genesis/internal/domain"
	"genesis/internal/infra"
	"genesis/internal/sqlinline"
)

const (
	defaultMediaLimit = 50
	maxMediaLimit     = 200
)

// MediaRepositoryPG implements domain.MediaRepository.
type MediaRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewMediaRepository(sql infra.SQLExecutor) *MediaRepositoryPG {
	return &MediaRepositoryPG{sql: sql}
}

func (r *MediaRepositoryPG) Insert(ctx context.Context, m *domain.GeneratedMedia) error {
	var jobID any
	if m.JobID != "" {
		jobID = m.JobID
	}
	_, err := r.sql.Exec(ctx, sqlinline.QInsertGeneratedMedia,
		m.ID,
		m.UserID,
		jobID,
		string(m.Kind),
		m.URL,
		m.StorageKey,
		m.Prompt,
		m.ModelID,
		m.AspectRatioOrDuration,
		m.Degraded,
		m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert media: %w", err)
	}
	return nil
}

// ListByUser returns newest first. An empty kind lists both kinds.
func (r *MediaRepositoryPG) ListByUser(ctx context.Context, userID string, kind domain.MediaKind, limit int) ([]domain.GeneratedMedia, error) {
	if limit <= 0 {
		limit = defaultMediaLimit
	}
	if limit > maxMediaLimit {
		limit = maxMediaLimit
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListGeneratedMedia, userID, string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	var out []domain.GeneratedMedia
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *MediaRepositoryPG) GetByID(ctx context.Context, userID, id string) (*domain.GeneratedMedia, error) {
	m, err := scanMedia(r.sql.QueryRow(ctx, sqlinline.QSelectGeneratedMedia, id, userID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *MediaRepositoryPG) Delete(ctx context.Context, userID, id string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QDeleteGeneratedMedia, id, userID)
	if err != nil {
		return fmt.Errorf("delete media: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanMedia(row pgx.Row) (*domain.GeneratedMedia, error) {
	var (
		m    domain.GeneratedMedia
		kind string
	)
	if err := row.Scan(
		&m.ID,
		&m.UserID,
		&m.JobID,
		&kind,
		&m.URL,
		&m.StorageKey,
		&m.Prompt,
		&m.ModelID,
		&m.AspectRatioOrDuration,
		&m.Degraded,
		&m.CreatedAt,
	); err != nil {
		return nil, err
	}
	m.Kind = domain.MediaKind(kind)
	return &m, nil
}

var _ domain.MediaRepository = (*MediaRepositoryPG)(nil)
