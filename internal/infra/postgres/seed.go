package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"green-assessment-service/internal/domain"
	"green-assessment-service/internal/infra/postgres/migrations"
)

type questionnaireRow struct {
	bun.BaseModel `bun:"table:questionnaires"`

	ID        string          `bun:"id,pk"`
	Title     string          `bun:"title"`
	Data      json.RawMessage `bun:"data,type:jsonb"`
	UpdatedAt time.Time       `bun:"updated_at"`
}

// OpenBun opens a bun handle over the pgdriver connector.
func OpenBun(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// Migrate applies all pending migrations and returns the applied group.
func Migrate(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	migrator := migrate.NewMigrator(db, migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return nil, fmt.Errorf("init migrator: %w", err)
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return group, nil
}

// SeedQuestionnaire upserts questionnaire content.
func SeedQuestionnaire(ctx context.Context, db *bun.DB, q domain.Questionnaire) error {
	raw, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode questionnaire: %w", err)
	}
	row := &questionnaireRow{ID: q.ID, Title: q.Title, Data: raw, UpdatedAt: time.Now().UTC()}
	_, err = db.NewInsert().
		Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("data = EXCLUDED.data").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("seed questionnaire %s: %w", q.ID, err)
	}
	return nil
}
