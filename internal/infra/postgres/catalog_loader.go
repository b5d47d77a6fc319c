package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"llm-quiz-service/internal/domain"
	catfile "llm-quiz-service/internal/infra/file"
)

// CatalogLoader loads the question bank from Postgres, one JSONB row per
// level in the same question-id -> question shape as the catalog file.
type CatalogLoader struct {
	pool *pgxpool.Pool
}

func NewCatalogLoader(pool *pgxpool.Pool) *CatalogLoader {
	return &CatalogLoader{pool: pool}
}

func (l *CatalogLoader) LoadCatalog(ctx context.Context) (domain.Catalog, error) {
	rows, err := l.pool.Query(ctx, `SELECT name, data FROM quiz_levels ORDER BY name`)
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("load catalog: %w", err)
	}
	defer rows.Close()

	catalog := domain.Catalog{Levels: map[string]domain.QuizLevel{}}
	for rows.Next() {
		var name string
		var raw []byte
		if err := rows.Scan(&name, &raw); err != nil {
			return domain.Catalog{}, fmt.Errorf("scan level: %w", err)
		}
		level, err := catfile.ParseLevel(name, raw)
		if err != nil {
			return domain.Catalog{}, err
		}
		catalog.Levels[name] = level
		catalog.Order = append(catalog.Order, name)
	}
	if err := rows.Err(); err != nil {
		return domain.Catalog{}, fmt.Errorf("load catalog: %w", err)
	}
	if len(catalog.Levels) == 0 {
		return domain.Catalog{}, fmt.Errorf("%w: quiz_levels table is empty", domain.ErrCatalogMissing)
	}
	return catalog, nil
}
