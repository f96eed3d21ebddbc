package migration

import (
	"context"
	_ "embed"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/PatchWorkCreations/iriseup-foundation/src/config"
	"github.com/PatchWorkCreations/iriseup-foundation/src/db"
	"github.com/PatchWorkCreations/iriseup-foundation/src/migration/migrations"
	"github.com/PatchWorkCreations/iriseup-foundation/src/migration/types"
	"github.com/PatchWorkCreations/iriseup-foundation/src/oops"
	"github.com/PatchWorkCreations/iriseup-foundation/src/website"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
)

func init() {
	var listMigrations bool

	migrateCommand := &cobra.Command{
		Use:   "migrate [target migration id]",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if listMigrations {
				ListMigrations(ctx, config.Config.Postgres)
				return nil
			}

			targetVersion := time.Time{}
			if len(args) > 0 {
				var err error
				targetVersion, err = time.Parse(time.RFC3339, args[0])
				if err != nil {
					return oops.New(err, "bad version string")
				}
			}
			return Migrate(ctx, config.Config.Postgres, types.MigrationVersion(targetVersion))
		},
	}
	migrateCommand.Flags().BoolVar(&listMigrations, "list", false, "List available migrations")

	makeMigrationCommand := &cobra.Command{
		Use:   "makemigration <name> <description>...",
		Short: "Create a new database migration file",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			description := strings.Join(args[1:], " ")

			path, err := MakeMigration(filepath.Join("src", "migration", "migrations"), name, description, time.Now())
			if err != nil {
				return err
			}
			fmt.Println("Successfully created migration file:")
			fmt.Println(path)
			return nil
		},
	}

	website.WebsiteCommand.AddCommand(migrateCommand)
	website.WebsiteCommand.AddCommand(makeMigrationCommand)
}

const migrationTable = "iriseup_migration"

func getSortedMigrationVersions() []types.MigrationVersion {
	return slices.SortedFunc(maps.Keys(migrations.All), types.MigrationVersion.Compare)
}

func getCurrentVersion(ctx context.Context, conn *pgx.Conn) (types.MigrationVersion, error) {
	var currentVersion time.Time
	row := conn.QueryRow(ctx, "SELECT version FROM "+migrationTable)
	err := row.Scan(&currentVersion)
	if err != nil {
		return types.MigrationVersion{}, err
	}
	currentVersion = currentVersion.UTC()

	return types.MigrationVersion(currentVersion), nil
}

// Best effort: a missing database or table just means nothing is applied yet.
func tryGetCurrentVersion(ctx context.Context, cfg config.PostgresConfig) types.MigrationVersion {
	conn, err := db.NewConn(ctx, cfg)
	if err != nil {
		return types.MigrationVersion{}
	}
	defer conn.Close(ctx)

	currentVersion, _ := getCurrentVersion(ctx, conn)

	return currentVersion
}

func ListMigrations(ctx context.Context, cfg config.PostgresConfig) {
	currentVersion := tryGetCurrentVersion(ctx, cfg)
	for _, version := range getSortedMigrationVersions() {
		migration := migrations.All[version]
		indicator := "  "
		if version.Equal(currentVersion) {
			indicator = "✔ "
		}
		fmt.Printf("%s%v (%s: %s)\n", indicator, version, migration.Name(), migration.Description())
	}
}

func Migrate(ctx context.Context, cfg config.PostgresConfig, targetVersion types.MigrationVersion) error {
	conn, err := db.NewConn(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+migrationTable+` (
			version		TIMESTAMP WITH TIME ZONE
		)
	`)
	if err != nil {
		return oops.New(err, "failed to create migration table")
	}

	// ensure there is a row
	var numRows int
	err = conn.QueryRow(ctx, "SELECT COUNT(*) FROM "+migrationTable).Scan(&numRows)
	if err != nil {
		return oops.New(err, "failed to count migration rows")
	}
	if numRows < 1 {
		_, err := conn.Exec(ctx, "INSERT INTO "+migrationTable+" (version) VALUES ($1)", time.Time{})
		if err != nil {
			return oops.New(err, "failed to insert initial migration row")
		}
	}

	currentVersion, err := getCurrentVersion(ctx, conn)
	if err != nil {
		return oops.New(err, "failed to get current version")
	}
	if currentVersion.IsZero() {
		fmt.Println("This is the first time you have run database migrations.")
	} else {
		fmt.Printf("Current version: %s\n", currentVersion.String())
	}

	plan, err := planMigration(getSortedMigrationVersions(), currentVersion, targetVersion)
	if err != nil {
		return err
	}
	if len(plan) == 0 {
		fmt.Println("Already migrated; nothing to do.")
		return nil
	}

	for _, step := range plan {
		migration := migrations.All[step.Version]
		if step.Down {
			fmt.Printf("Rolling back migration %v\n", step.Version)
		} else {
			fmt.Printf("Applying migration %v (%v)\n", step.Version, migration.Name())
		}

		if err := applyStep(ctx, conn, migration, step); err != nil {
			return oops.New(err, "migration failed for %v", step.Version)
		}
	}
	return nil
}

func applyStep(ctx context.Context, conn *pgx.Conn, migration types.Migration, step migrationStep) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return oops.New(err, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	if step.Down {
		err = migration.Down(ctx, tx)
	} else {
		err = migration.Up(ctx, tx)
	}
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, "UPDATE "+migrationTable+" SET version = $1", time.Time(step.ResultVersion))
	if err != nil {
		return oops.New(err, "failed to update version in migrations table")
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.New(err, "failed to commit transaction")
	}
	return nil
}

type migrationStep struct {
	Version types.MigrationVersion
	Down    bool
	// What the migration table holds once the step commits.
	ResultVersion types.MigrationVersion
}

/*
Works out which migrations to run, in order, to move from current to target.
A zero target means the latest migration. A zero current version means nothing
has been applied yet.
*/
func planMigration(allVersions []types.MigrationVersion, currentVersion, targetVersion types.MigrationVersion) ([]migrationStep, error) {
	if len(allVersions) == 0 {
		return nil, oops.New(nil, "there are no migrations")
	}
	if targetVersion.IsZero() {
		targetVersion = allVersions[len(allVersions)-1]
	}

	currentIndex := -1
	targetIndex := -1
	for i, version := range allVersions {
		if currentVersion.Equal(version) {
			currentIndex = i
		}
		if targetVersion.Equal(version) {
			targetIndex = i
		}
	}

	if targetIndex < 0 {
		return nil, oops.New(nil, "could not find migration with version %v", targetVersion)
	}
	if currentIndex < 0 && !currentVersion.IsZero() {
		return nil, oops.New(nil, "database is at unknown migration version %v", currentVersion)
	}

	var plan []migrationStep
	if currentIndex < targetIndex {
		// roll forward
		for i := currentIndex + 1; i <= targetIndex; i++ {
			plan = append(plan, migrationStep{
				Version:       allVersions[i],
				ResultVersion: allVersions[i],
			})
		}
	} else {
		// roll back
		for i := currentIndex; i > targetIndex; i-- {
			previousVersion := types.MigrationVersion{}
			if i > 0 {
				previousVersion = allVersions[i-1]
			}
			plan = append(plan, migrationStep{
				Version:       allVersions[i],
				Down:          true,
				ResultVersion: previousVersion,
			})
		}
	}
	return plan, nil
}

//go:embed migrationTemplate.txt
var migrationTemplate string

// Writes a new migration file into dir and returns its path.
func MakeMigration(dir, name, description string, now time.Time) (string, error) {
	now = now.UTC().Truncate(time.Second)

	result := migrationTemplate
	result = strings.ReplaceAll(result, "%NAME%", name)
	result = strings.ReplaceAll(result, "%DESCRIPTION%", fmt.Sprintf("%#v", description))

	nowConstructor := fmt.Sprintf("time.Date(%d, %d, %d, %d, %d, %d, 0, time.UTC)", now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), now.Second())
	result = strings.ReplaceAll(result, "%DATE%", nowConstructor)

	safeVersion := strings.ReplaceAll(types.MigrationVersion(now).String(), ":", "")
	filename := fmt.Sprintf("%v_%v.go", safeVersion, name)
	path := filepath.Join(dir, filename)

	err := os.WriteFile(path, []byte(result), 0644)
	if err != nil {
		return "", oops.New(err, "failed to write migration file")
	}

	return path, nil
}
