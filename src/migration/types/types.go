package types

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// A schema change. Up and Down each run in their own transaction.
type Migration interface {
	Version() MigrationVersion
	Name() string
	Description() string
	Up(ctx context.Context, tx pgx.Tx) error
	Down(ctx context.Context, tx pgx.Tx) error
}

// Versions are UTC timestamps truncated to the second; they also name the
// migration's file.
type MigrationVersion time.Time

func (v MigrationVersion) String() string {
	return time.Time(v).Format(time.RFC3339)
}

func (v MigrationVersion) Compare(other MigrationVersion) int {
	return time.Time(v).Compare(time.Time(other))
}

func (v MigrationVersion) Before(other MigrationVersion) bool {
	return v.Compare(other) < 0
}

func (v MigrationVersion) Equal(other MigrationVersion) bool {
	return v.Compare(other) == 0
}

func (v MigrationVersion) IsZero() bool {
	return time.Time(v).IsZero()
}
