package migrations

import (
	"fmt"

	"github.com/PatchWorkCreations/iriseup-foundation/src/migration/types"
)

var All = make(map[types.MigrationVersion]types.Migration)

func registerMigration(m types.Migration) {
	if _, exists := All[m.Version()]; exists {
		panic(fmt.Sprintf("duplicate migration version %v (%s)", m.Version(), m.Name()))
	}
	All[m.Version()] = m
}
