package school_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hcanning/homeroom/core"
	"github.com/hcanning/homeroom/core/auth"
	"github.com/hcanning/homeroom/core/school"
	"github.com/hcanning/homeroom/storage/securefile"
)

func setup(t *testing.T) (*school.Service, school.Repository) {
	repo, err := securefile.Open(t.TempDir())
	require.NoError(t, err)

	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	hasher := auth.NewHasher(auth.HasherParams{N: 1024, R: 8, P: 1, SaltLen: 16, KeyLen: 32})
	return school.NewService(repo, hasher, validate), repo
}

func createTeacher(t *testing.T, svc *school.Service, email, pwd string) school.Teacher {
	teacher, err := svc.CreateTeacher(context.Background(), school.NewTeacher{Email: email, Password: pwd, Name: "Teacher " + email})
	require.NoError(t, err)
	return teacher
}

func createStudent(t *testing.T, svc *school.Service, teacherID, name string) school.Student {
	student, err := svc.CreateStudent(context.Background(), teacherID, school.NewStudent{Name: name})
	require.NoError(t, err)
	return student
}

func validationMessage(t *testing.T, err error) string {
	t.Helper()
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr), "want *core.ValidationError, got %v", err)
	return vErr.Error()
}

func TestService_Admin(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	configured, err := svc.AdminConfigured(ctx)
	require.NoError(t, err)
	assert.False(t, configured)

	// login before any admin exists
	_, err = svc.Login(ctx, school.Login{Role: auth.RoleSuperadmin, Email: "admin@x.com", Password: "p1"})
	assert.Equal(t, school.ErrInvalidCredentials, err)

	err = svc.SetupAdmin(ctx, school.Credentials{Email: "admin@x.com"})
	assert.Equal(t, "Email and password are required", validationMessage(t, err))

	require.NoError(t, svc.SetupAdmin(ctx, school.Credentials{Email: "  Admin@X.com ", Password: "first"}))
	configured, err = svc.AdminConfigured(ctx)
	require.NoError(t, err)
	assert.True(t, configured)

	err = svc.SetupAdmin(ctx, school.Credentials{Email: "admin@x.com", Password: "again"})
	assert.Equal(t, "Admin already configured", validationMessage(t, err))

	sub, err := svc.Login(ctx, school.Login{Role: auth.RoleSuperadmin, Email: "ADMIN@x.com", Password: "first"})
	require.NoError(t, err)
	assert.Equal(t, auth.AdminSubject, sub)

	// Scenario E: setup then force leaves one admin with the second password
	require.NoError(t, svc.ForceSetupAdmin(ctx, school.Credentials{Email: "admin@x.com", Password: "second"}))
	snap, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap.Admin)
	assert.Equal(t, "admin@x.com", snap.Admin.Email)

	_, err = svc.Login(ctx, school.Login{Role: auth.RoleSuperadmin, Email: "admin@x.com", Password: "first"})
	assert.Equal(t, school.ErrInvalidCredentials, err)
	_, err = svc.Login(ctx, school.Login{Role: auth.RoleSuperadmin, Email: "admin@x.com", Password: "second"})
	assert.NoError(t, err)
}

func TestService_Login(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	teacher := createTeacher(t, svc, "a@x.com", "p1")

	tests := []struct {
		name    string
		data    school.Login
		wantSub string
		wantErr error
		wantMsg string
	}{
		{name: "missing role", data: school.Login{Email: "a@x.com", Password: "p1"}, wantMsg: "Missing fields"},
		{name: "unknown role", data: school.Login{Role: "principal", Email: "a@x.com", Password: "p1"}, wantMsg: "Missing fields"},
		{name: "missing password", data: school.Login{Role: auth.RoleTeacher, Email: "a@x.com"}, wantMsg: "Missing fields"},
		{name: "unknown email", data: school.Login{Role: auth.RoleTeacher, Email: "b@x.com", Password: "p1"}, wantErr: school.ErrInvalidCredentials},
		{name: "wrong password", data: school.Login{Role: auth.RoleTeacher, Email: "a@x.com", Password: "p2"}, wantErr: school.ErrInvalidCredentials},
		{name: "teacher email as admin", data: school.Login{Role: auth.RoleSuperadmin, Email: "a@x.com", Password: "p1"}, wantErr: school.ErrInvalidCredentials},
		{name: "valid", data: school.Login{Role: auth.RoleTeacher, Email: "a@x.com", Password: "p1"}, wantSub: teacher.ID},
		{name: "case insensitive email", data: school.Login{Role: auth.RoleTeacher, Email: " A@X.COM", Password: "p1"}, wantSub: teacher.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := svc.Login(ctx, tt.data)
			switch {
			case tt.wantMsg != "":
				assert.Equal(t, tt.wantMsg, validationMessage(t, err))
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantSub, sub)
			}
		})
	}
}

// countingHasher counts Verify calls.
type countingHasher struct {
	school.PasswordHasher
	verified int
}

func (h *countingHasher) Verify(password, stored string) bool {
	h.verified++
	return h.PasswordHasher.Verify(password, stored)
}

func TestService_Login_adminAlwaysVerifies(t *testing.T) {
	repo, err := securefile.Open(t.TempDir())
	require.NoError(t, err)
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	hasher := &countingHasher{PasswordHasher: auth.NewHasher(auth.HasherParams{N: 1024, R: 8, P: 1, SaltLen: 16, KeyLen: 32})}
	svc := school.NewService(repo, hasher, validate)

	ctx := context.Background()
	require.NoError(t, svc.SetupAdmin(ctx, school.Credentials{Email: "boss@x.com", Password: "pw"}))

	tests := []struct {
		name    string
		email   string
		pwd     string
		wantErr error
	}{
		{name: "wrong email", email: "nope@x.com", pwd: "pw", wantErr: school.ErrInvalidCredentials},
		{name: "wrong password", email: "boss@x.com", pwd: "lol", wantErr: school.ErrInvalidCredentials},
		{name: "valid", email: "boss@x.com", pwd: "pw"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hasher.verified = 0
			_, err := svc.Login(ctx, school.Login{Role: auth.RoleSuperadmin, Email: tt.email, Password: tt.pwd})
			assert.Equal(t, tt.wantErr, err)
			assert.Equal(t, 1, hasher.verified)
		})
	}
}

func TestSnapshot_WithoutOrphans(t *testing.T) {
	snap := school.Snapshot{
		Teachers: []school.Teacher{{ID: "t1"}},
		Students: []school.Student{{ID: "s1", TeacherID: "t1"}, {ID: "s2", TeacherID: "gone"}},
		Attendance: []school.AttendanceRecord{
			{TeacherID: "t1", Date: "2024-01-02", PresentIDs: []string{"s1"}},
			{TeacherID: "gone", Date: "2024-01-02", PresentIDs: []string{"s2"}},
			{TeacherID: "gone", Date: "2024-01-03", PresentIDs: []string{}},
		},
	}

	clean, students, attendance := snap.WithoutOrphans()
	assert.Equal(t, 1, students)
	assert.Equal(t, 2, attendance)
	assert.Equal(t, snap.Teachers, clean.Teachers)
	assert.Equal(t, []school.Student{{ID: "s1", TeacherID: "t1"}}, clean.Students)
	require.Len(t, clean.Attendance, 1)
	assert.Equal(t, "t1", clean.Attendance[0].TeacherID)
	assert.Len(t, snap.Attendance, 3, "the original snapshot is left alone")
}

func TestService_CreateTeacher(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	teacher, err := svc.CreateTeacher(ctx, school.NewTeacher{
		Email:    " A@x.com ",
		Password: "p1",
		Name:     " Ada ",
		Pronouns: "she/her",
		Homeroom: "7B",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, teacher.ID)
	assert.Equal(t, "a@x.com", teacher.Email)
	assert.Equal(t, "Ada", teacher.Name)
	assert.Equal(t, "7B", teacher.Homeroom)
	assert.NotEqual(t, "p1", teacher.PasswordHash)

	// Scenario A: same email again
	_, err = svc.CreateTeacher(ctx, school.NewTeacher{Email: "a@x.com", Password: "p1", Name: "Other"})
	assert.Equal(t, "Teacher with this email already exists", validationMessage(t, err))

	_, err = svc.CreateTeacher(ctx, school.NewTeacher{Email: "b@x.com", Name: "Bob"})
	var vErrs validator.ValidationErrors
	require.True(t, errors.As(err, &vErrs))
	assert.Equal(t, "password", vErrs[0].Field())

	_, err = svc.CreateTeacher(ctx, school.NewTeacher{Email: "not-an-email", Password: "p", Name: "Bob"})
	require.True(t, errors.As(err, &vErrs))
	assert.Equal(t, "email", vErrs[0].Field())

	_, err = svc.CreateTeacher(ctx, school.NewTeacher{Email: "c@x.com", Password: "p", Name: "   "})
	require.True(t, errors.As(err, &vErrs))
	assert.Equal(t, "name", vErrs[0].Field())

	teachers, err := svc.ListTeachers(ctx)
	require.NoError(t, err)
	assert.Len(t, teachers, 1)
}

func TestService_UpdateTeacher(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	teacher := createTeacher(t, svc, "a@x.com", "p1")
	other := createTeacher(t, svc, "b@x.com", "p1")

	// omitted fields stay, empty string overwrites, empty email/password are ignored
	updated, err := svc.UpdateTeacher(ctx, teacher.ID, school.UpdateTeacher{
		Email:    core.StringPtr(""),
		Password: core.StringPtr(""),
		Dept:     core.StringPtr("History"),
		Homeroom: core.StringPtr(""),
	})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", updated.Email)
	assert.Equal(t, teacher.PasswordHash, updated.PasswordHash)
	assert.Equal(t, teacher.Name, updated.Name)
	assert.Equal(t, "History", updated.Dept)
	assert.Equal(t, "", updated.Homeroom)

	updated, err = svc.UpdateTeacher(ctx, teacher.ID, school.UpdateTeacher{
		Email:    core.StringPtr(" New@X.com"),
		Password: core.StringPtr("p2"),
	})
	require.NoError(t, err)
	assert.Equal(t, "new@x.com", updated.Email)

	_, err = svc.Login(ctx, school.Login{Role: auth.RoleTeacher, Email: "new@x.com", Password: "p2"})
	assert.NoError(t, err)

	// keeping one's own email is fine
	_, err = svc.UpdateTeacher(ctx, teacher.ID, school.UpdateTeacher{Email: core.StringPtr("new@x.com")})
	assert.NoError(t, err)

	_, err = svc.UpdateTeacher(ctx, teacher.ID, school.UpdateTeacher{Email: core.StringPtr(other.Email)})
	assert.Equal(t, "Email already in use", validationMessage(t, err))

	_, err = svc.UpdateTeacher(ctx, "nope", school.UpdateTeacher{Name: core.StringPtr("x")})
	assert.Equal(t, school.ErrNotFound, errors.Cause(err))
}

func TestService_DeleteTeacher_cascades(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	// Scenario C
	teacher := createTeacher(t, svc, "a@x.com", "p1")
	s1 := createStudent(t, svc, teacher.ID, "Sam")
	createStudent(t, svc, teacher.ID, "Kim")
	createStudent(t, svc, teacher.ID, "Lee")
	_, err := svc.SaveTodayAttendance(ctx, teacher.ID, school.SaveAttendance{Present: []string{s1.ID}})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteTeacher(ctx, teacher.ID))

	students, err := svc.ListStudents(ctx, teacher.ID)
	require.NoError(t, err)
	assert.Empty(t, students)
	rec, err := svc.TodayAttendance(ctx, teacher.ID)
	require.NoError(t, err)
	assert.Nil(t, rec)

	assert.Equal(t, school.ErrNotFound, errors.Cause(svc.DeleteTeacher(ctx, teacher.ID)))
}

func TestService_Students_scopedToTeacher(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	// Scenario D
	a := createTeacher(t, svc, "a@x.com", "p1")
	b := createTeacher(t, svc, "b@x.com", "p1")
	theirs := createStudent(t, svc, b.ID, "Max")

	_, err := svc.UpdateStudent(ctx, a.ID, theirs.ID, school.UpdateStudent{Name: core.StringPtr("Hacked")})
	assert.Equal(t, school.ErrNotFound, errors.Cause(err))
	assert.Equal(t, school.ErrNotFound, errors.Cause(svc.DeleteStudent(ctx, a.ID, theirs.ID)))

	students, err := svc.ListStudents(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, theirs, students[0])

	students, err = svc.ListStudents(ctx, a.ID)
	require.NoError(t, err)
	assert.NotNil(t, students)
	assert.Empty(t, students)

	updated, err := svc.UpdateStudent(ctx, b.ID, theirs.ID, school.UpdateStudent{Pronouns: core.StringPtr("he/him")})
	require.NoError(t, err)
	assert.Equal(t, "Max", updated.Name)
	assert.Equal(t, "he/him", updated.Pronouns)
}

func TestService_CreateStudent(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	teacher := createTeacher(t, svc, "a@x.com", "p1")

	student, err := svc.CreateStudent(ctx, teacher.ID, school.NewStudent{Name: " Sam ", Dept: "Art"})
	require.NoError(t, err)
	assert.Equal(t, "Sam", student.Name)
	assert.Equal(t, teacher.ID, student.TeacherID)

	_, err = svc.CreateStudent(ctx, teacher.ID, school.NewStudent{})
	var vErrs validator.ValidationErrors
	assert.True(t, errors.As(err, &vErrs))

	_, err = svc.CreateStudent(ctx, "deleted-teacher", school.NewStudent{Name: "Sam"})
	assert.Equal(t, school.ErrNotFound, errors.Cause(err))
}

func TestService_Attendance(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	now := time.Date(2024, time.September, 2, 9, 30, 0, 0, time.Local)
	school.NowFunc = func() time.Time { return now }
	defer func() { school.NowFunc = time.Now }()

	// Scenario B
	teacher := createTeacher(t, svc, "a@x.com", "p1")
	other := createTeacher(t, svc, "b@x.com", "p1")
	sam := createStudent(t, svc, teacher.ID, "Sam")
	kim := createStudent(t, svc, teacher.ID, "Kim")
	foreign := createStudent(t, svc, other.ID, "Max")

	rec, err := svc.TodayAttendance(ctx, teacher.ID)
	require.NoError(t, err)
	assert.Nil(t, rec)

	saved, err := svc.SaveTodayAttendance(ctx, teacher.ID, school.SaveAttendance{Present: []string{sam.ID, "bogus-id"}})
	require.NoError(t, err)
	assert.Equal(t, []string{sam.ID}, saved.PresentIDs)
	assert.Equal(t, "2024-09-02", saved.Date)

	// dedupe, keep first-seen order, drop other teachers' students, replace the set
	saved, err = svc.SaveTodayAttendance(ctx, teacher.ID, school.SaveAttendance{Present: []string{kim.ID, foreign.ID, kim.ID, sam.ID}})
	require.NoError(t, err)
	assert.Equal(t, []string{kim.ID, sam.ID}, saved.PresentIDs)

	rec, err = svc.TodayAttendance(ctx, teacher.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, saved, *rec)

	saved, err = svc.SaveTodayAttendance(ctx, teacher.ID, school.SaveAttendance{Present: []string{}})
	require.NoError(t, err)
	assert.Empty(t, saved.PresentIDs)

	_, err = svc.SaveTodayAttendance(ctx, teacher.ID, school.SaveAttendance{})
	assert.Equal(t, "present must be an array of student ids", validationMessage(t, err))

	// next day starts empty
	now = now.Add(24 * time.Hour)
	rec, err = svc.TodayAttendance(ctx, teacher.ID)
	require.NoError(t, err)
	assert.Nil(t, rec)
}
