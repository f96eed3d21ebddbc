/*
This package contains lowish-level APIs for making database queries to our Postgres database. It streamlines the process of mapping query results to Go types, while allowing you to write arbitrary SQL queries.

The primary functions are Query and QueryOne.

Query syntax

Arguments can be provided using placeholders like $1, $2, etc. All arguments will be safely escaped and mapped from their Go type to the correct Postgres type. (This is a direct proxy to pgx.)

	ids, err := db.QueryScalar[int](ctx, conn,
		`
		SELECT id
		FROM media_asset
		WHERE
			folder = ANY($1)
			AND storage_type = $2
		`,
		[]string{"gallery", "events"},
		"local",
	)

(If you want to use a slice in your query, use Postgres arrays instead of IN.)

To query multiple columns at once, use a struct type with `db:"column_name"` tags and the special $columns placeholder:

	type assetRow struct {
		ID        int       `db:"id"`
		Title     string    `db:"title"`
		LocalPath *string   `db:"local_path"`
		CreatedAt time.Time `db:"created_at"`
	}
	rows, err := db.Query[assetRow](ctx, conn, `SELECT $columns FROM media_asset`)
	// Resulting query:
	// SELECT id, title, local_path, created_at FROM media_asset

Nullable columns map to pointer fields. A table prefix can be given as $columns{prefix}, which turns into prefix.id, prefix.title, and so on.

Start a query with a "---- Name" comment line to give it a readable name in perf output.
*/
package db
