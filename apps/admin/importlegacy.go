package main

import (
	"context"
	"encoding/json"

	"github.com/hcanning/homeroom/storage"
	sqlxrepos "github.com/hcanning/homeroom/storage/database/sqlx"
)

type importSummary struct {
	Imported bool `json:"imported"`
	sqlxrepos.ImportResult
}

// importLegacy copies the encrypted file store in dir into the database and prints a JSON summary.
// It runs even when the server already imported the file at startup. Rows are upserted and an
// existing admin is kept.
func (cli *commandLine) importLegacy(dir string) error {
	if cli.importer == nil {
		return errNoDatabase
	}
	res, imported, err := storage.ImportLegacy(context.Background(), dir, cli.importer, true)
	if err != nil {
		return err
	}
	return json.NewEncoder(cli.out).Encode(importSummary{Imported: imported, ImportResult: res})
}
