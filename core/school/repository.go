package school

import (
	"context"
	"errors"
)

var (
	// errors
	ErrNotFound           = errors.New("Not found")
	ErrInvalidCredentials = errors.New("Invalid credentials")
	ErrAdminConfigured    = errors.New("Admin already configured")
	ErrTeacherExists      = errors.New("Teacher with this email already exists")
	ErrEmailInUse         = errors.New("Email already in use")
)

// Repository is the storage port. Every backend must behave identically:
//   - lookups return ErrNotFound for missing rows, including student rows owned by another teacher;
//   - lists are ordered newest first;
//   - DeleteTeacher removes the teacher's students and attendance records too.
type Repository interface {
	GetAdmin(ctx context.Context) (Admin, error)
	// SetAdmin removes any existing admin and stores the new one.
	SetAdmin(ctx context.Context, admin Admin) error

	GetTeacherByEmail(ctx context.Context, email string) (Teacher, error)
	GetTeacherByID(ctx context.Context, id string) (Teacher, error)
	ListTeachers(ctx context.Context) ([]Teacher, error)
	CreateTeacher(ctx context.Context, t Teacher) (Teacher, error)
	UpdateTeacher(ctx context.Context, id string, patch TeacherPatch) (Teacher, error)
	DeleteTeacher(ctx context.Context, id string) error

	ListStudentsByTeacher(ctx context.Context, teacherID string) ([]Student, error)
	GetStudentByID(ctx context.Context, teacherID, id string) (Student, error)
	CreateStudent(ctx context.Context, s Student) (Student, error)
	UpdateStudent(ctx context.Context, teacherID, id string, patch StudentPatch) (Student, error)
	DeleteStudent(ctx context.Context, teacherID, id string) error

	GetAttendance(ctx context.Context, teacherID, date string) (AttendanceRecord, error)
	SaveAttendance(ctx context.Context, rec AttendanceRecord) (AttendanceRecord, error)

	Snapshot(ctx context.Context) (Snapshot, error)
	Close() error
}
