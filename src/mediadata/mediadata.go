/*
Package mediadata stores media asset records in Postgres, in the media_asset
table created by the AddMediaAssetTable migration.
*/
package mediadata

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PatchWorkCreations/iriseup-foundation/src/db"
	"github.com/PatchWorkCreations/iriseup-foundation/src/media"
	"github.com/PatchWorkCreations/iriseup-foundation/src/mediaerr"
	"github.com/PatchWorkCreations/iriseup-foundation/src/models"
	"github.com/PatchWorkCreations/iriseup-foundation/src/perf"
)

type PostgresRecords struct {
	conn db.ConnOrTx
}

var _ media.Records = &PostgresRecords{}

func NewPostgresRecords(conn db.ConnOrTx) *PostgresRecords {
	return &PostgresRecords{conn: conn}
}

// The flat shape of a media_asset row. Location columns for the storage type
// not in use are empty strings.
type assetRow struct {
	ID          int                `db:"id"`
	Title       string             `db:"title"`
	StorageType models.StorageType `db:"storage_type"`
	Folder      string             `db:"folder"`

	Width    int    `db:"width"`
	Height   int    `db:"height"`
	Format   string `db:"format"`
	FileSize int    `db:"file_size"`

	LocalPath    string `db:"local_path"`
	RemoteID     string `db:"remote_id"`
	OriginalURL  string `db:"original_url"`
	WebURL       string `db:"web_url"`
	ThumbnailURL string `db:"thumbnail_url"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func rowFromAsset(a *models.MediaAsset) assetRow {
	row := assetRow{
		ID:          a.ID,
		Title:       a.Title,
		StorageType: a.StorageType,
		Folder:      a.Folder,
		Width:       a.Width,
		Height:      a.Height,
		Format:      a.Format,
		FileSize:    a.FileSize,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
	if a.Local != nil {
		row.LocalPath = a.Local.Path
	}
	if a.Remote != nil {
		row.RemoteID = a.Remote.ID
		row.OriginalURL = a.Remote.OriginalURL
		row.WebURL = a.Remote.WebURL
		row.ThumbnailURL = a.Remote.ThumbnailURL
	}
	return row
}

func (row *assetRow) toAsset() *models.MediaAsset {
	a := &models.MediaAsset{
		ID:          row.ID,
		Title:       row.Title,
		StorageType: row.StorageType,
		Folder:      row.Folder,
		Width:       row.Width,
		Height:      row.Height,
		Format:      row.Format,
		FileSize:    row.FileSize,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	switch row.StorageType {
	case models.StorageLocal:
		a.Local = &models.LocalLocation{Path: row.LocalPath}
	case models.StorageRemote:
		a.Remote = &models.RemoteLocation{
			ID:           row.RemoteID,
			OriginalURL:  row.OriginalURL,
			WebURL:       row.WebURL,
			ThumbnailURL: row.ThumbnailURL,
		}
	}
	return a
}

func (r *PostgresRecords) Create(ctx context.Context, asset *models.MediaAsset) (*models.MediaAsset, error) {
	if err := asset.Validate(); err != nil {
		return nil, mediaerr.New(mediaerr.Validation, err, "refusing to save invalid asset")
	}

	perf := perf.ExtractPerf(ctx)
	perf.StartBlock("SQL", "Create media asset")
	defer perf.EndBlock()

	row := rowFromAsset(asset)
	created, err := db.QueryOne[assetRow](ctx, r.conn,
		`
		---- Create media asset
		INSERT INTO media_asset (
			title, storage_type, folder,
			width, height, format, file_size,
			local_path, remote_id, original_url, web_url, thumbnail_url
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING $columns
		`,
		row.Title, string(row.StorageType), row.Folder,
		row.Width, row.Height, row.Format, row.FileSize,
		row.LocalPath, row.RemoteID, row.OriginalURL, row.WebURL, row.ThumbnailURL,
	)
	if err != nil {
		return nil, mediaerr.New(mediaerr.BackendIO, err, "failed to insert media asset")
	}
	return created.toAsset(), nil
}

func (r *PostgresRecords) Get(ctx context.Context, id int) (*models.MediaAsset, error) {
	row, err := db.QueryOne[assetRow](ctx, r.conn,
		`
		---- Get media asset
		SELECT $columns
		FROM media_asset
		WHERE id = $1
		`,
		id,
	)
	if err != nil {
		return nil, wrapLookupError(err, id)
	}
	return row.toAsset(), nil
}

func (r *PostgresRecords) Delete(ctx context.Context, id int) error {
	tag, err := r.conn.Exec(ctx,
		`
		---- Delete media asset
		DELETE FROM media_asset
		WHERE id = $1
		`,
		id,
	)
	if err != nil {
		return mediaerr.New(mediaerr.BackendIO, err, "failed to delete media asset %d", id)
	}
	if tag.RowsAffected() == 0 {
		return mediaerr.New(mediaerr.NotFound, nil, "no media asset with id %d", id)
	}
	return nil
}

func (r *PostgresRecords) UpdateDetails(ctx context.Context, id int, title, folder string) (*models.MediaAsset, error) {
	row, err := db.QueryOne[assetRow](ctx, r.conn,
		`
		---- Update media asset details
		UPDATE media_asset
		SET title = $2, folder = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING $columns
		`,
		id, title, folder,
	)
	if err != nil {
		return nil, wrapLookupError(err, id)
	}
	return row.toAsset(), nil
}

func (r *PostgresRecords) Count(ctx context.Context, search string) (int, error) {
	var qb db.QueryBuilder
	qb.Add(
		`
		---- Count media assets
		SELECT COUNT(*)
		FROM media_asset
		WHERE TRUE
		`,
	)
	addSearch(&qb, search)

	count, err := db.QueryOneScalar[int](ctx, r.conn, qb.String(), qb.Args()...)
	if err != nil {
		return 0, mediaerr.New(mediaerr.BackendIO, err, "failed to count media assets")
	}
	return count, nil
}

func (r *PostgresRecords) List(ctx context.Context, q media.ListQuery) ([]*models.MediaAsset, error) {
	perf := perf.ExtractPerf(ctx)
	perf.StartBlock("SQL", "List media assets")
	defer perf.EndBlock()

	qb := buildListQuery(q)
	rows, err := db.Query[assetRow](ctx, r.conn, qb.String(), qb.Args()...)
	if err != nil {
		return nil, mediaerr.New(mediaerr.BackendIO, err, "failed to list media assets")
	}

	res := make([]*models.MediaAsset, 0, len(rows))
	for _, row := range rows {
		res = append(res, row.toAsset())
	}
	return res, nil
}

func buildListQuery(q media.ListQuery) *db.QueryBuilder {
	var qb db.QueryBuilder
	qb.Add(
		`
		---- List media assets
		SELECT $columns
		FROM media_asset
		WHERE TRUE
		`,
	)
	addSearch(&qb, q.Search)
	qb.Add(`ORDER BY created_at DESC, id DESC`)
	if q.Limit > 0 {
		qb.Add(`LIMIT $?`, q.Limit)
	}
	if q.Offset > 0 {
		qb.Add(`OFFSET $?`, q.Offset)
	}
	return &qb
}

func addSearch(qb *db.QueryBuilder, search string) {
	search = strings.TrimSpace(search)
	if search == "" {
		return
	}
	pattern := "%" + escapeLike(search) + "%"
	qb.Add(`AND (title ILIKE $? OR folder ILIKE $?)`, pattern, pattern)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func wrapLookupError(err error, id int) error {
	if errors.Is(err, db.NotFound) {
		return mediaerr.New(mediaerr.NotFound, err, "no media asset with id %d", id)
	}
	return mediaerr.New(mediaerr.BackendIO, err, "failed to fetch media asset %d", id)
}
