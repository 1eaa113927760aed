package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/hcanning/homeroom/core/school"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	teacherEmailConstraint  = "teachers_email_key"

	teacherColumns    = "id, email, password_hash, name, pronouns, dept, photo_url, homeroom, created_at"
	studentColumns    = "id, teacher_id, name, pronouns, dept, photo_url, created_at"
	attendanceColumns = "teacher_id, to_char(date_key, 'YYYY-MM-DD') AS date_key, present_ids, saved_at"
)

type (
	adminRow struct {
		Email        string    `db:"email"`
		PasswordHash string    `db:"password_hash"`
		CreatedAt    time.Time `db:"created_at"`
	}

	teacherRow struct {
		ID           string      `db:"id"`
		Email        string      `db:"email"`
		PasswordHash string      `db:"password_hash"`
		Name         string      `db:"name"`
		Pronouns     null.String `db:"pronouns"`
		Dept         null.String `db:"dept"`
		PhotoURL     null.String `db:"photo_url"`
		Homeroom     null.String `db:"homeroom"`
		CreatedAt    time.Time   `db:"created_at"`
	}

	studentRow struct {
		ID        string      `db:"id"`
		TeacherID string      `db:"teacher_id"`
		Name      string      `db:"name"`
		Pronouns  null.String `db:"pronouns"`
		Dept      null.String `db:"dept"`
		PhotoURL  null.String `db:"photo_url"`
		CreatedAt time.Time   `db:"created_at"`
	}

	attendanceRow struct {
		TeacherID  string         `db:"teacher_id"`
		DateKey    string         `db:"date_key"`
		PresentIDs pq.StringArray `db:"present_ids"`
		SavedAt    time.Time      `db:"saved_at"`
	}
)

// Repository stores the school data in PostgreSQL.
// Cascades are left to the ON DELETE CASCADE foreign keys.
type Repository struct {
	db *sqlx.DB
}

var _ school.Repository = (*Repository)(nil) // interface compliance check

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: sqlx.NewDb(db, "postgres")}
}

func (repo *Repository) Close() error {
	return repo.db.Close()
}

// trapNoRowsErr maps psql "no rows" err to school.ErrNotFound
func trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return school.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func pqCode(err error) (*pq.Error, bool) {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return pqErr, ok
}

// trapTeacherWriteErr maps constraint violations of teacher writes to domain errors.
func trapTeacherWriteErr(err error, msg string) error {
	if pqErr, ok := pqCode(err); ok && pqErr.Code == codeUniqueViolation && pqErr.Constraint == teacherEmailConstraint {
		return school.ErrEmailInUse
	}
	return trapNoRowsErr(err, msg)
}

// trapMissingTeacherErr maps a dangling teacher_id to school.ErrNotFound.
func trapMissingTeacherErr(err error, msg string) error {
	if pqErr, ok := pqCode(err); ok && pqErr.Code == codeForeignKeyViolation {
		return school.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

func nullStringPtr(s *string) null.String {
	if s == nil {
		return null.String{}
	}
	return nullString(*s)
}

func boilTeacher(t school.Teacher) teacherRow {
	return teacherRow{
		ID:           t.ID,
		Email:        t.Email,
		PasswordHash: t.PasswordHash,
		Name:         t.Name,
		Pronouns:     nullString(t.Pronouns),
		Dept:         nullString(t.Dept),
		PhotoURL:     nullString(t.PhotoURL),
		Homeroom:     nullString(t.Homeroom),
		CreatedAt:    t.CreatedAt.UTC(),
	}
}

func unboilTeacher(row teacherRow) school.Teacher {
	return school.Teacher{
		ID:           row.ID,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		Name:         row.Name,
		Pronouns:     row.Pronouns.String,
		Dept:         row.Dept.String,
		PhotoURL:     row.PhotoURL.String,
		Homeroom:     row.Homeroom.String,
		CreatedAt:    row.CreatedAt.UTC(),
	}
}

func boilStudent(s school.Student) studentRow {
	return studentRow{
		ID:        s.ID,
		TeacherID: s.TeacherID,
		Name:      s.Name,
		Pronouns:  nullString(s.Pronouns),
		Dept:      nullString(s.Dept),
		PhotoURL:  nullString(s.PhotoURL),
		CreatedAt: s.CreatedAt.UTC(),
	}
}

func unboilStudent(row studentRow) school.Student {
	return school.Student{
		ID:        row.ID,
		TeacherID: row.TeacherID,
		Name:      row.Name,
		Pronouns:  row.Pronouns.String,
		Dept:      row.Dept.String,
		PhotoURL:  row.PhotoURL.String,
		CreatedAt: row.CreatedAt.UTC(),
	}
}

func boilAttendance(rec school.AttendanceRecord) attendanceRow {
	ids := pq.StringArray(rec.PresentIDs)
	if ids == nil {
		ids = pq.StringArray{}
	}
	return attendanceRow{
		TeacherID:  rec.TeacherID,
		DateKey:    rec.Date,
		PresentIDs: ids,
		SavedAt:    rec.SavedAt.UTC(),
	}
}

func unboilAttendance(row attendanceRow) school.AttendanceRecord {
	ids := []string(row.PresentIDs)
	if ids == nil {
		ids = []string{}
	}
	return school.AttendanceRecord{
		TeacherID:  row.TeacherID,
		Date:       row.DateKey,
		PresentIDs: ids,
		SavedAt:    row.SavedAt.UTC(),
	}
}

// Admin

func (repo *Repository) GetAdmin(ctx context.Context) (school.Admin, error) {
	var row adminRow
	q := "SELECT email, password_hash, created_at FROM admins ORDER BY id DESC LIMIT 1"
	if err := repo.db.GetContext(ctx, &row, q); err != nil {
		return school.Admin{}, trapNoRowsErr(err, "getting admin")
	}
	return school.Admin{Email: row.Email, PasswordHash: row.PasswordHash, CreatedAt: row.CreatedAt.UTC()}, nil
}

// SetAdmin replaces the admin row. Delete and insert share a transaction so the
// new admin may reuse the previous email.
func (repo *Repository) SetAdmin(ctx context.Context, admin school.Admin) (err error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM admins"); err != nil {
		return errors.Wrap(err, "clearing admins")
	}
	row := adminRow{Email: admin.Email, PasswordHash: admin.PasswordHash, CreatedAt: admin.CreatedAt.UTC()}
	q := "INSERT INTO admins (email, password_hash, created_at) VALUES (:email, :password_hash, :created_at)"
	if _, err = tx.NamedExecContext(ctx, q, row); err != nil {
		return errors.Wrap(err, "inserting admin")
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "committing admin")
	}
	return nil
}

// Teachers

func (repo *Repository) getTeacher(ctx context.Context, where string, arg interface{}) (school.Teacher, error) {
	var row teacherRow
	q := "SELECT " + teacherColumns + " FROM teachers WHERE " + where + " = $1"
	if err := repo.db.GetContext(ctx, &row, q, arg); err != nil {
		return school.Teacher{}, trapNoRowsErr(err, "getting teacher")
	}
	return unboilTeacher(row), nil
}

func (repo *Repository) GetTeacherByEmail(ctx context.Context, email string) (school.Teacher, error) {
	return repo.getTeacher(ctx, "email", email)
}

func (repo *Repository) GetTeacherByID(ctx context.Context, id string) (school.Teacher, error) {
	return repo.getTeacher(ctx, "id", id)
}

func (repo *Repository) ListTeachers(ctx context.Context) ([]school.Teacher, error) {
	var rows []teacherRow
	q := "SELECT " + teacherColumns + " FROM teachers ORDER BY created_at DESC, id ASC"
	if err := repo.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "listing teachers")
	}
	teachers := make([]school.Teacher, 0, len(rows))
	for _, row := range rows {
		t := unboilTeacher(row)
		t.PasswordHash = ""
		teachers = append(teachers, t)
	}
	return teachers, nil
}

func (repo *Repository) CreateTeacher(ctx context.Context, teacher school.Teacher) (school.Teacher, error) {
	q := `INSERT INTO teachers (` + teacherColumns + `)
		VALUES (:id, :email, :password_hash, :name, :pronouns, :dept, :photo_url, :homeroom, :created_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, boilTeacher(teacher)); err != nil {
		return school.Teacher{}, trapTeacherWriteErr(err, "inserting teacher")
	}
	return teacher, nil
}

func (repo *Repository) UpdateTeacher(ctx context.Context, id string, patch school.TeacherPatch) (school.Teacher, error) {
	if patch.IsEmpty() {
		return repo.GetTeacherByID(ctx, id)
	}

	set := newSetClause()
	if patch.Email != nil {
		set.add("email", *patch.Email)
	}
	if patch.PasswordHash != nil {
		set.add("password_hash", *patch.PasswordHash)
	}
	if patch.Name != nil {
		set.add("name", *patch.Name)
	}
	if patch.Pronouns != nil {
		set.add("pronouns", nullStringPtr(patch.Pronouns))
	}
	if patch.Dept != nil {
		set.add("dept", nullStringPtr(patch.Dept))
	}
	if patch.PhotoURL != nil {
		set.add("photo_url", nullStringPtr(patch.PhotoURL))
	}
	if patch.Homeroom != nil {
		set.add("homeroom", nullStringPtr(patch.Homeroom))
	}

	var row teacherRow
	q := "UPDATE teachers SET " + set.String() + " WHERE id = " + set.next(id) + " RETURNING " + teacherColumns
	if err := repo.db.GetContext(ctx, &row, q, set.args...); err != nil {
		return school.Teacher{}, trapTeacherWriteErr(err, "updating teacher")
	}
	return unboilTeacher(row), nil
}

func (repo *Repository) DeleteTeacher(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM teachers WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting teacher")
	}
	return requireAffected(res, "deleting teacher")
}

// Students

func (repo *Repository) ListStudentsByTeacher(ctx context.Context, teacherID string) ([]school.Student, error) {
	var rows []studentRow
	q := "SELECT " + studentColumns + " FROM students WHERE teacher_id = $1 ORDER BY created_at DESC, id ASC"
	if err := repo.db.SelectContext(ctx, &rows, q, teacherID); err != nil {
		return nil, errors.Wrap(err, "listing students")
	}
	students := make([]school.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, unboilStudent(row))
	}
	return students, nil
}

func (repo *Repository) GetStudentByID(ctx context.Context, teacherID, id string) (school.Student, error) {
	var row studentRow
	q := "SELECT " + studentColumns + " FROM students WHERE id = $1 AND teacher_id = $2"
	if err := repo.db.GetContext(ctx, &row, q, id, teacherID); err != nil {
		return school.Student{}, trapNoRowsErr(err, "getting student")
	}
	return unboilStudent(row), nil
}

func (repo *Repository) CreateStudent(ctx context.Context, student school.Student) (school.Student, error) {
	q := `INSERT INTO students (` + studentColumns + `)
		VALUES (:id, :teacher_id, :name, :pronouns, :dept, :photo_url, :created_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, boilStudent(student)); err != nil {
		return school.Student{}, trapMissingTeacherErr(err, "inserting student")
	}
	return student, nil
}

func (repo *Repository) UpdateStudent(ctx context.Context, teacherID, id string, patch school.StudentPatch) (school.Student, error) {
	if patch.IsEmpty() {
		return repo.GetStudentByID(ctx, teacherID, id)
	}

	set := newSetClause()
	if patch.Name != nil {
		set.add("name", *patch.Name)
	}
	if patch.Pronouns != nil {
		set.add("pronouns", nullStringPtr(patch.Pronouns))
	}
	if patch.Dept != nil {
		set.add("dept", nullStringPtr(patch.Dept))
	}
	if patch.PhotoURL != nil {
		set.add("photo_url", nullStringPtr(patch.PhotoURL))
	}

	var row studentRow
	q := "UPDATE students SET " + set.String() +
		" WHERE id = " + set.next(id) + " AND teacher_id = " + set.next(teacherID) +
		" RETURNING " + studentColumns
	if err := repo.db.GetContext(ctx, &row, q, set.args...); err != nil {
		return school.Student{}, trapNoRowsErr(err, "updating student")
	}
	return unboilStudent(row), nil
}

func (repo *Repository) DeleteStudent(ctx context.Context, teacherID, id string) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM students WHERE id = $1 AND teacher_id = $2", id, teacherID)
	if err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return requireAffected(res, "deleting student")
}

// Attendance

func (repo *Repository) GetAttendance(ctx context.Context, teacherID, date string) (school.AttendanceRecord, error) {
	var row attendanceRow
	q := "SELECT " + attendanceColumns + " FROM attendance WHERE teacher_id = $1 AND date_key = $2"
	if err := repo.db.GetContext(ctx, &row, q, teacherID, date); err != nil {
		return school.AttendanceRecord{}, trapNoRowsErr(err, "getting attendance")
	}
	return unboilAttendance(row), nil
}

const upsertAttendance = `INSERT INTO attendance (teacher_id, date_key, present_ids, saved_at)
	VALUES (:teacher_id, :date_key, :present_ids, :saved_at)
	ON CONFLICT (teacher_id, date_key) DO UPDATE
	SET present_ids = EXCLUDED.present_ids, saved_at = EXCLUDED.saved_at`

func (repo *Repository) SaveAttendance(ctx context.Context, rec school.AttendanceRecord) (school.AttendanceRecord, error) {
	row := boilAttendance(rec)
	if _, err := repo.db.NamedExecContext(ctx, upsertAttendance, row); err != nil {
		return school.AttendanceRecord{}, trapMissingTeacherErr(err, "saving attendance")
	}
	return unboilAttendance(row), nil
}

// Snapshot returns the whole dataset, password hashes included.
func (repo *Repository) Snapshot(ctx context.Context) (school.Snapshot, error) {
	var snap school.Snapshot

	admin, err := repo.GetAdmin(ctx)
	switch errors.Cause(err) {
	case nil:
		snap.Admin = &admin
	case school.ErrNotFound: // pass
	default:
		return school.Snapshot{}, err
	}

	var teachers []teacherRow
	q := "SELECT " + teacherColumns + " FROM teachers ORDER BY created_at ASC, id ASC"
	if err = repo.db.SelectContext(ctx, &teachers, q); err != nil {
		return school.Snapshot{}, errors.Wrap(err, "selecting teachers")
	}
	for _, row := range teachers {
		snap.Teachers = append(snap.Teachers, unboilTeacher(row))
	}

	var students []studentRow
	q = "SELECT " + studentColumns + " FROM students ORDER BY created_at ASC, id ASC"
	if err = repo.db.SelectContext(ctx, &students, q); err != nil {
		return school.Snapshot{}, errors.Wrap(err, "selecting students")
	}
	for _, row := range students {
		snap.Students = append(snap.Students, unboilStudent(row))
	}

	var attendance []attendanceRow
	q = "SELECT " + attendanceColumns + " FROM attendance ORDER BY teacher_id ASC, date_key ASC"
	if err = repo.db.SelectContext(ctx, &attendance, q); err != nil {
		return school.Snapshot{}, errors.Wrap(err, "selecting attendance")
	}
	for _, row := range attendance {
		snap.Attendance = append(snap.Attendance, unboilAttendance(row))
	}
	return snap, nil
}

func requireAffected(res sql.Result, msg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if n == 0 {
		return school.ErrNotFound
	}
	return nil
}
