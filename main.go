package main

import (
	"os"

	_ "github.com/PatchWorkCreations/iriseup-foundation/src/devstore"
	"github.com/PatchWorkCreations/iriseup-foundation/src/logging"
	_ "github.com/PatchWorkCreations/iriseup-foundation/src/mediacmd"
	_ "github.com/PatchWorkCreations/iriseup-foundation/src/migration"
	"github.com/PatchWorkCreations/iriseup-foundation/src/website"
)

func main() {
	err := website.WebsiteCommand.Execute()
	logging.Close()
	if err != nil {
		os.Exit(1)
	}
}
