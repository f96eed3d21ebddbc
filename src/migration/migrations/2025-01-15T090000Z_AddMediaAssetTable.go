package migrations

import (
	"context"
	"time"

	"github.com/PatchWorkCreations/iriseup-foundation/src/migration/types"
	"github.com/jackc/pgx/v5"
)

func init() {
	registerMigration(AddMediaAssetTable{})
}

type AddMediaAssetTable struct{}

func (m AddMediaAssetTable) Version() types.MigrationVersion {
	return types.MigrationVersion(time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC))
}

func (m AddMediaAssetTable) Name() string {
	return "AddMediaAssetTable"
}

func (m AddMediaAssetTable) Description() string {
	return "Adds the media_asset table for ingested images"
}

func (m AddMediaAssetTable) Up(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `
		CREATE TABLE media_asset (
			id SERIAL PRIMARY KEY,
			title VARCHAR(255) NOT NULL DEFAULT '',
			storage_type VARCHAR(10) NOT NULL,
			folder VARCHAR(255) NOT NULL DEFAULT 'default',

			width INT NOT NULL,
			height INT NOT NULL,
			format VARCHAR(10) NOT NULL,
			file_size INT NOT NULL,

			local_path VARCHAR(500) NOT NULL DEFAULT '',
			remote_id VARCHAR(255) NOT NULL DEFAULT '',
			original_url VARCHAR(1000) NOT NULL DEFAULT '',
			web_url VARCHAR(1000) NOT NULL DEFAULT '',
			thumbnail_url VARCHAR(1000) NOT NULL DEFAULT '',

			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

			CONSTRAINT media_asset_dimensions CHECK (width > 0 AND height > 0 AND file_size > 0),
			CONSTRAINT media_asset_location CHECK (
				(storage_type = 'local' AND local_path <> '' AND remote_id = '')
				OR (storage_type = 'remote' AND remote_id <> '' AND original_url <> '' AND local_path = '')
			)
		);

		CREATE INDEX media_asset_created_at ON media_asset (created_at DESC, id DESC);
		CREATE INDEX media_asset_folder ON media_asset (folder);
	`)
	return err
}

func (m AddMediaAssetTable) Down(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `
		DROP TABLE media_asset;
	`)
	return err
}
