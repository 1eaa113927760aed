package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hcanning/homeroom/core"
	"github.com/hcanning/homeroom/core/school"
)

// OpenFunc returns an empty repository. It is called once per subtest.
type OpenFunc func(t *testing.T) school.Repository

// RunRepositoryTests checks the behaviour every school.Repository must share.
func RunRepositoryTests(t *testing.T, open OpenFunc) {
	t.Run("admin", func(t *testing.T) { testAdmin(t, open(t)) })
	t.Run("teachers", func(t *testing.T) { testTeachers(t, open(t)) })
	t.Run("update teacher", func(t *testing.T) { testUpdateTeacher(t, open(t)) })
	t.Run("delete teacher cascades", func(t *testing.T) { testDeleteTeacherCascades(t, open(t)) })
	t.Run("students are scoped", func(t *testing.T) { testStudentScoping(t, open(t)) })
	t.Run("update student", func(t *testing.T) { testUpdateStudent(t, open(t)) })
	t.Run("attendance", func(t *testing.T) { testAttendance(t, open(t)) })
	t.Run("snapshot", func(t *testing.T) { testSnapshot(t, open(t)) })
}

func isNotFound(t *testing.T, err error) {
	t.Helper()
	assert.Equal(t, school.ErrNotFound, errors.Cause(err))
}

func testAdmin(t *testing.T, repo school.Repository) {
	ctx := context.Background()

	_, err := repo.GetAdmin(ctx)
	isNotFound(t, err)

	first := school.Admin{Email: "admin@x.com", PasswordHash: "h1", CreatedAt: Stamp(0)}
	require.NoError(t, repo.SetAdmin(ctx, first))
	got, err := repo.GetAdmin(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	// force reset overwrites in place
	second := school.Admin{Email: "boss@x.com", PasswordHash: "h2", CreatedAt: Stamp(time.Second)}
	require.NoError(t, repo.SetAdmin(ctx, second))
	got, err = repo.GetAdmin(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, got)

	snap, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap.Admin)
	assert.Equal(t, "h2", snap.Admin.PasswordHash)
}

func testTeachers(t *testing.T, repo school.Repository) {
	ctx := context.Background()

	older := CreateTeacher(t, repo, "old@x.com", "Old", Stamp(-time.Hour))
	newer := CreateTeacher(t, repo, "new@x.com", "New", Stamp(0))

	got, err := repo.GetTeacherByID(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, older, got)
	assert.Equal(t, "hash:old@x.com", got.PasswordHash)

	got, err = repo.GetTeacherByEmail(ctx, "new@x.com")
	require.NoError(t, err)
	assert.Equal(t, newer, got)

	_, err = repo.GetTeacherByID(ctx, "nope")
	isNotFound(t, err)
	_, err = repo.GetTeacherByEmail(ctx, "nope@x.com")
	isNotFound(t, err)

	teachers, err := repo.ListTeachers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{newer.ID, older.ID}, TeacherIDs(teachers))
	for _, teacher := range teachers {
		assert.Empty(t, teacher.PasswordHash, "hash must be stripped from lists")
	}

	dup := newer
	dup.ID = "another-id"
	_, err = repo.CreateTeacher(ctx, dup)
	assert.Equal(t, school.ErrEmailInUse, errors.Cause(err))
}

func testUpdateTeacher(t *testing.T, repo school.Repository) {
	ctx := context.Background()

	teacher := CreateTeacher(t, repo, "a@x.com", "Ada")
	other := CreateTeacher(t, repo, "b@x.com", "Bob")

	updated, err := repo.UpdateTeacher(ctx, teacher.ID, school.TeacherPatch{
		Name:     core.StringPtr("Ada L."),
		Pronouns: core.StringPtr(""),
	})
	require.NoError(t, err)

	want := teacher
	want.Name = "Ada L."
	want.Pronouns = ""
	assert.Equal(t, want, updated)

	got, err := repo.GetTeacherByID(ctx, teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// no-op patch
	got, err = repo.UpdateTeacher(ctx, teacher.ID, school.TeacherPatch{})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = repo.UpdateTeacher(ctx, teacher.ID, school.TeacherPatch{
		Email:        core.StringPtr("ada@x.com"),
		PasswordHash: core.StringPtr("new-hash"),
	})
	require.NoError(t, err)
	assert.Equal(t, "ada@x.com", got.Email)
	assert.Equal(t, "new-hash", got.PasswordHash)
	assert.Equal(t, "Ada L.", got.Name)

	_, err = repo.UpdateTeacher(ctx, teacher.ID, school.TeacherPatch{Email: core.StringPtr(other.Email)})
	assert.Equal(t, school.ErrEmailInUse, errors.Cause(err))

	_, err = repo.UpdateTeacher(ctx, "nope", school.TeacherPatch{Name: core.StringPtr("x")})
	isNotFound(t, err)
}

func testDeleteTeacherCascades(t *testing.T, repo school.Repository) {
	ctx := context.Background()
	today := school.DateKey(time.Now())

	teacher := CreateTeacher(t, repo, "a@x.com", "Ada")
	s1 := CreateStudent(t, repo, teacher.ID, "Sam")
	s2 := CreateStudent(t, repo, teacher.ID, "Kim")
	CreateStudent(t, repo, teacher.ID, "Lee")
	SaveAttendance(t, repo, teacher.ID, today, s1.ID, s2.ID)

	keep := CreateTeacher(t, repo, "b@x.com", "Bob")
	kept := CreateStudent(t, repo, keep.ID, "Max")
	SaveAttendance(t, repo, keep.ID, today, kept.ID)

	require.NoError(t, repo.DeleteTeacher(ctx, teacher.ID))

	_, err := repo.GetTeacherByID(ctx, teacher.ID)
	isNotFound(t, err)
	students, err := repo.ListStudentsByTeacher(ctx, teacher.ID)
	require.NoError(t, err)
	assert.Empty(t, students)
	_, err = repo.GetAttendance(ctx, teacher.ID, today)
	isNotFound(t, err)
	_, err = repo.GetStudentByID(ctx, teacher.ID, s1.ID)
	isNotFound(t, err)

	// other teachers are untouched
	students, err = repo.ListStudentsByTeacher(ctx, keep.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{kept.ID}, StudentIDs(students))
	rec, err := repo.GetAttendance(ctx, keep.ID, today)
	require.NoError(t, err)
	assert.Equal(t, []string{kept.ID}, rec.PresentIDs)

	snap, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Teachers, 1)
	assert.Len(t, snap.Students, 1)
	assert.Len(t, snap.Attendance, 1)

	isNotFound(t, repo.DeleteTeacher(ctx, teacher.ID))
}

func testStudentScoping(t *testing.T, repo school.Repository) {
	ctx := context.Background()

	a := CreateTeacher(t, repo, "a@x.com", "Ada")
	b := CreateTeacher(t, repo, "b@x.com", "Bob")
	older := CreateStudent(t, repo, a.ID, "Sam", Stamp(-time.Hour))
	newer := CreateStudent(t, repo, a.ID, "Kim", Stamp(0))
	theirs := CreateStudent(t, repo, b.ID, "Max")

	students, err := repo.ListStudentsByTeacher(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{newer.ID, older.ID}, StudentIDs(students))

	got, err := repo.GetStudentByID(ctx, a.ID, older.ID)
	require.NoError(t, err)
	assert.Equal(t, older, got)

	// teacher A cannot see, change or delete teacher B's student
	_, err = repo.GetStudentByID(ctx, a.ID, theirs.ID)
	isNotFound(t, err)
	_, err = repo.UpdateStudent(ctx, a.ID, theirs.ID, school.StudentPatch{Name: core.StringPtr("Hacked")})
	isNotFound(t, err)
	isNotFound(t, repo.DeleteStudent(ctx, a.ID, theirs.ID))

	got, err = repo.GetStudentByID(ctx, b.ID, theirs.ID)
	require.NoError(t, err)
	assert.Equal(t, theirs, got)

	require.NoError(t, repo.DeleteStudent(ctx, a.ID, older.ID))
	students, err = repo.ListStudentsByTeacher(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{newer.ID}, StudentIDs(students))
	isNotFound(t, repo.DeleteStudent(ctx, a.ID, older.ID))
}

func testUpdateStudent(t *testing.T, repo school.Repository) {
	ctx := context.Background()

	teacher := CreateTeacher(t, repo, "a@x.com", "Ada")
	student := CreateStudent(t, repo, teacher.ID, "Sam")

	updated, err := repo.UpdateStudent(ctx, teacher.ID, student.ID, school.StudentPatch{
		Dept:     core.StringPtr("Math"),
		PhotoURL: core.StringPtr("data:image/png;base64,AAAA"),
	})
	require.NoError(t, err)

	want := student
	want.Dept = "Math"
	want.PhotoURL = "data:image/png;base64,AAAA"
	assert.Equal(t, want, updated)

	got, err := repo.GetStudentByID(ctx, teacher.ID, student.ID)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = repo.UpdateStudent(ctx, teacher.ID, "nope", school.StudentPatch{Name: core.StringPtr("x")})
	isNotFound(t, err)
}

func testAttendance(t *testing.T, repo school.Repository) {
	ctx := context.Background()
	today := school.DateKey(time.Now())

	teacher := CreateTeacher(t, repo, "a@x.com", "Ada")
	s1 := CreateStudent(t, repo, teacher.ID, "Sam")
	s2 := CreateStudent(t, repo, teacher.ID, "Kim")

	_, err := repo.GetAttendance(ctx, teacher.ID, today)
	isNotFound(t, err)

	first := SaveAttendance(t, repo, teacher.ID, today, s1.ID, s2.ID)
	got, err := repo.GetAttendance(ctx, teacher.ID, today)
	require.NoError(t, err)
	assert.Equal(t, first, got)
	assert.Equal(t, today, got.Date)

	// re-saving replaces the set
	second := SaveAttendance(t, repo, teacher.ID, today, s2.ID)
	got, err = repo.GetAttendance(ctx, teacher.ID, today)
	require.NoError(t, err)
	assert.Equal(t, []string{s2.ID}, got.PresentIDs)
	assert.True(t, second.SavedAt.Equal(got.SavedAt))

	empty := SaveAttendance(t, repo, teacher.ID, "2001-01-01")
	got, err = repo.GetAttendance(ctx, teacher.ID, "2001-01-01")
	require.NoError(t, err)
	assert.Equal(t, empty, got)
	assert.NotNil(t, got.PresentIDs)
	assert.Empty(t, got.PresentIDs)

	// still one record for today
	snap, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Attendance, 2)
}

func testSnapshot(t *testing.T, repo school.Repository) {
	ctx := context.Background()

	snap, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Empty())

	teacher := CreateTeacher(t, repo, "a@x.com", "Ada")
	student := CreateStudent(t, repo, teacher.ID, "Sam")
	rec := SaveAttendance(t, repo, teacher.ID, "2024-09-02", student.ID)

	snap, err = repo.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, snap.Empty())
	assert.Nil(t, snap.Admin)
	assert.Equal(t, []school.Teacher{teacher}, snap.Teachers)
	assert.Equal(t, []school.Student{student}, snap.Students)
	assert.Equal(t, []school.AttendanceRecord{rec}, snap.Attendance)
}
