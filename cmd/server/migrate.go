package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"kabala/internal/infrastructure/migration"
)

func migrateUp(ctx context.Context, pool *pgxpool.Pool) error {
	m, err := migration.New(pool)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	return m.Up(ctx)
}
