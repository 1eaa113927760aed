// Package storagetest holds fixtures and a behaviour suite shared by every school.Repository backend.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hcanning/homeroom/core/school"
)

// Stamp returns a UTC timestamp that survives a round trip through every backend.
func Stamp(offset time.Duration) time.Time {
	return time.Now().UTC().Add(offset).Truncate(time.Millisecond)
}

func CreateTeacher(t *testing.T, repo school.Repository, email, name string, createdAt ...time.Time) school.Teacher {
	tstamp := Stamp(0)
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	teacher, err := repo.CreateTeacher(context.Background(), school.Teacher{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: "hash:" + email,
		Name:         name,
		Pronouns:     "they/them",
		Dept:         "Science",
		Homeroom:     "7B",
		CreatedAt:    tstamp,
	})
	if err != nil {
		t.Fatalf("CreateTeacher() failed: %v", err)
	}
	return teacher
}

func CreateStudent(t *testing.T, repo school.Repository, teacherID, name string, createdAt ...time.Time) school.Student {
	tstamp := Stamp(0)
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	student, err := repo.CreateStudent(context.Background(), school.Student{
		ID:        uuid.NewString(),
		TeacherID: teacherID,
		Name:      name,
		CreatedAt: tstamp,
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return student
}

func SaveAttendance(t *testing.T, repo school.Repository, teacherID, date string, presentIDs ...string) school.AttendanceRecord {
	if presentIDs == nil {
		presentIDs = []string{}
	}
	rec, err := repo.SaveAttendance(context.Background(), school.AttendanceRecord{
		TeacherID:  teacherID,
		Date:       date,
		PresentIDs: presentIDs,
		SavedAt:    Stamp(0),
	})
	if err != nil {
		t.Fatalf("SaveAttendance() failed: %v", err)
	}
	return rec
}

func StudentIDs(students []school.Student) []string {
	ids := make([]string, len(students))
	for i, s := range students {
		ids[i] = s.ID
	}
	return ids
}

func TeacherIDs(teachers []school.Teacher) []string {
	ids := make([]string, len(teachers))
	for i, t := range teachers {
		ids[i] = t.ID
	}
	return ids
}
