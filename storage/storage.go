// Package storage picks the school.Repository backend for the process.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/hcanning/homeroom/core"
	"github.com/hcanning/homeroom/core/school"
	"github.com/hcanning/homeroom/storage/database"
	sqlxrepos "github.com/hcanning/homeroom/storage/database/sqlx"
	"github.com/hcanning/homeroom/storage/securefile"
)

// Open returns the relational repository when a database URL is configured and the encrypted
// file repository otherwise. With a database, legacy file data found in the data dir is
// imported once at startup.
func Open(ctx context.Context, conf *core.Config, logger core.Logger) (school.Repository, error) {
	if !conf.Database.Relational() {
		logger.Info(fmt.Sprintf("storage: using encrypted file store in %q", conf.DataDir))
		repo, err := securefile.Open(conf.DataDir)
		if err != nil {
			return nil, errors.Wrap(err, "opening file store")
		}
		return repo, nil
	}

	logger.Info("storage: using database")
	db, err := database.Open(conf.Database)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	repo := sqlxrepos.NewRepository(db)

	res, imported, err := ImportLegacy(ctx, conf.DataDir, repo, false)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}
	if imported {
		logger.Info("storage: imported legacy data", res)
		if res.SkippedStudents > 0 || res.SkippedAttendance > 0 {
			logger.Info(fmt.Sprintf("storage: skipped %d students and %d attendance records of deleted teachers",
				res.SkippedStudents, res.SkippedAttendance))
		}
	}
	return repo, nil
}

// Importer is a repository able to absorb a snapshot.
type Importer interface {
	Import(ctx context.Context, snap school.Snapshot) (sqlxrepos.ImportResult, error)
}

// ImportLegacy imports the encrypted file store in dataDir into dst, then marks it imported.
// It does nothing when there is no data file, when the file holds no data, or when it was
// already imported and force is false. Students and attendance of teachers missing from the
// file are skipped. A file that cannot be decrypted is an error.
func ImportLegacy(ctx context.Context, dataDir string, dst Importer, force bool) (sqlxrepos.ImportResult, bool, error) {
	exists, err := securefile.Exists(dataDir)
	if err != nil || !exists {
		return sqlxrepos.ImportResult{}, false, err
	}
	if !force {
		done, err := securefile.Imported(dataDir)
		if err != nil || done {
			return sqlxrepos.ImportResult{}, false, err
		}
	}

	legacy, err := securefile.OpenExisting(dataDir)
	if err != nil {
		return sqlxrepos.ImportResult{}, false, errors.Wrap(err, "opening legacy data")
	}
	defer func() { _ = legacy.Close() }()

	snap, err := legacy.Snapshot(ctx)
	if err != nil {
		return sqlxrepos.ImportResult{}, false, errors.Wrap(err, "reading legacy data")
	}
	if snap.Empty() {
		return sqlxrepos.ImportResult{}, false, nil
	}
	snap, skippedStudents, skippedAttendance := snap.WithoutOrphans()

	res, err := dst.Import(ctx, snap)
	if err != nil {
		return sqlxrepos.ImportResult{}, false, errors.Wrap(err, "importing legacy data")
	}
	res.SkippedStudents, res.SkippedAttendance = skippedStudents, skippedAttendance

	if err = securefile.MarkImported(dataDir, time.Now()); err != nil {
		return res, true, err
	}
	return res, true, nil
}
