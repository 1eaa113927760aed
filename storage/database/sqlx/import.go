package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hcanning/homeroom/core/school"
)

// ImportResult counts what an Import wrote.
type ImportResult struct {
	AdminImported bool `json:"adminImported"`
	Teachers      int  `json:"teachers"`
	Students      int  `json:"students"`
	Attendance    int  `json:"attendance"`

	// rows left out because their teacher no longer exists
	SkippedStudents   int `json:"skippedStudents,omitempty"`
	SkippedAttendance int `json:"skippedAttendance,omitempty"`
}

const (
	insertAdminIfNone = `INSERT INTO admins (email, password_hash, created_at)
		SELECT CAST(:email AS TEXT), CAST(:password_hash AS TEXT), CAST(:created_at AS TIMESTAMPTZ)
		WHERE NOT EXISTS (SELECT 1 FROM admins)`

	upsertTeacher = `INSERT INTO teachers (` + teacherColumns + `)
		VALUES (:id, :email, :password_hash, :name, :pronouns, :dept, :photo_url, :homeroom, :created_at)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			password_hash = EXCLUDED.password_hash,
			name = EXCLUDED.name,
			pronouns = EXCLUDED.pronouns,
			dept = EXCLUDED.dept,
			photo_url = EXCLUDED.photo_url,
			homeroom = EXCLUDED.homeroom`

	upsertStudent = `INSERT INTO students (` + studentColumns + `)
		VALUES (:id, :teacher_id, :name, :pronouns, :dept, :photo_url, :created_at)
		ON CONFLICT (id) DO UPDATE SET
			teacher_id = EXCLUDED.teacher_id,
			name = EXCLUDED.name,
			pronouns = EXCLUDED.pronouns,
			dept = EXCLUDED.dept,
			photo_url = EXCLUDED.photo_url`
)

// Import copies snap into the database in one transaction. The admin is only written when the
// database has none; teachers, students and attendance are upserted by primary key, so running
// the same import twice leaves the same state as running it once.
func (repo *Repository) Import(ctx context.Context, snap school.Snapshot) (res ImportResult, err error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return ImportResult{}, errors.Wrap(err, "beginning import")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if snap.Admin != nil {
		row := adminRow{Email: snap.Admin.Email, PasswordHash: snap.Admin.PasswordHash, CreatedAt: snap.Admin.CreatedAt.UTC()}
		r, err := tx.NamedExecContext(ctx, insertAdminIfNone, row)
		if err != nil {
			return ImportResult{}, errors.Wrap(err, "importing admin")
		}
		if n, err := r.RowsAffected(); err == nil && n > 0 {
			res.AdminImported = true
		}
	}

	for _, t := range snap.Teachers {
		if _, err = tx.NamedExecContext(ctx, upsertTeacher, boilTeacher(t)); err != nil {
			return ImportResult{}, errors.Wrapf(err, "importing teacher %s", t.ID)
		}
		res.Teachers++
	}

	for _, s := range snap.Students {
		if _, err = tx.NamedExecContext(ctx, upsertStudent, boilStudent(s)); err != nil {
			return ImportResult{}, errors.Wrapf(err, "importing student %s", s.ID)
		}
		res.Students++
	}

	for _, a := range snap.Attendance {
		if _, err = tx.NamedExecContext(ctx, upsertAttendance, boilAttendance(a)); err != nil {
			return ImportResult{}, errors.Wrapf(err, "importing attendance %s/%s", a.TeacherID, a.Date)
		}
		res.Attendance++
	}

	if err = tx.Commit(); err != nil {
		return ImportResult{}, errors.Wrap(err, "committing import")
	}
	return res, nil
}
