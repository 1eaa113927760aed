package securefile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// ImportMarkerName is written next to the data file once its content was imported into a database.
const ImportMarkerName = "secure-db.imported"

type importMarker struct {
	ImportedAt time.Time `json:"importedAt"`
}

// MarkImported records that the data file in dir was imported at t.
func MarkImported(dir string, t time.Time) error {
	data, err := json.Marshal(importMarker{ImportedAt: t.UTC()})
	if err != nil {
		return err
	}
	if err = atomicWriteFile(filepath.Join(dir, ImportMarkerName), data); err != nil {
		return errors.Wrap(err, "writing import marker")
	}
	return nil
}

// Imported reports whether the data file in dir was already imported.
func Imported(dir string) (bool, error) {
	_, err := os.Stat(filepath.Join(dir, ImportMarkerName))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrap(err, "checking import marker")
}
