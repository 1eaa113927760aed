package school

import (
	"time"
)

var NowFunc = time.Now // mockable

const dateKeyLayout = "2006-01-02"

// timestamp normalizes t for storage: UTC, millisecond precision.
func timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// DateKey returns the server-local calendar date of t as YYYY-MM-DD.
func DateKey(t time.Time) string {
	return t.In(time.Local).Format(dateKeyLayout)
}

type (
	Admin struct {
		Email        string    `json:"email"`
		PasswordHash string    `json:"-"`
		CreatedAt    time.Time `json:"createdAt"`
	}

	Teacher struct {
		ID           string    `json:"id"`
		Email        string    `json:"email"`
		PasswordHash string    `json:"-"`
		Name         string    `json:"name"`
		Pronouns     string    `json:"pronouns"`
		Dept         string    `json:"dept"`
		PhotoURL     string    `json:"photoUrl"`
		Homeroom     string    `json:"homeroom"`
		CreatedAt    time.Time `json:"createdAt"`
	}

	Student struct {
		ID        string    `json:"id"`
		TeacherID string    `json:"teacherId"`
		Name      string    `json:"name"`
		Pronouns  string    `json:"pronouns"`
		Dept      string    `json:"dept"`
		PhotoURL  string    `json:"photoUrl"`
		CreatedAt time.Time `json:"createdAt"`
	}

	AttendanceRecord struct {
		TeacherID  string    `json:"-"`
		Date       string    `json:"date"`
		PresentIDs []string  `json:"presentIds"`
		SavedAt    time.Time `json:"savedAt"`
	}

	// TeacherPatch changes only its non-nil fields.
	TeacherPatch struct {
		Email        *string
		PasswordHash *string
		Name         *string
		Pronouns     *string
		Dept         *string
		PhotoURL     *string
		Homeroom     *string
	}

	// StudentPatch changes only its non-nil fields.
	StudentPatch struct {
		Name     *string
		Pronouns *string
		Dept     *string
		PhotoURL *string
	}

	// Snapshot is a full copy of a dataset, secrets included. Used by the legacy import.
	Snapshot struct {
		Admin      *Admin
		Teachers   []Teacher
		Students   []Student
		Attendance []AttendanceRecord
	}
)

func (s Snapshot) Empty() bool {
	return s.Admin == nil && len(s.Teachers) == 0 && len(s.Students) == 0 && len(s.Attendance) == 0
}

// WithoutOrphans returns a copy of s without the students and attendance records of teachers
// missing from s, along with how many of each were dropped. Older data files kept the
// attendance of deleted teachers.
func (s Snapshot) WithoutOrphans() (clean Snapshot, students, attendance int) {
	known := make(map[string]bool, len(s.Teachers))
	for _, t := range s.Teachers {
		known[t.ID] = true
	}

	clean = Snapshot{Admin: s.Admin, Teachers: s.Teachers}
	for _, st := range s.Students {
		if !known[st.TeacherID] {
			students++
			continue
		}
		clean.Students = append(clean.Students, st)
	}
	for _, rec := range s.Attendance {
		if !known[rec.TeacherID] {
			attendance++
			continue
		}
		clean.Attendance = append(clean.Attendance, rec)
	}
	return clean, students, attendance
}

// Apply returns a copy of t with the patch applied.
func (p TeacherPatch) Apply(t Teacher) Teacher {
	setIfPresent(&t.Email, p.Email)
	setIfPresent(&t.PasswordHash, p.PasswordHash)
	setIfPresent(&t.Name, p.Name)
	setIfPresent(&t.Pronouns, p.Pronouns)
	setIfPresent(&t.Dept, p.Dept)
	setIfPresent(&t.PhotoURL, p.PhotoURL)
	setIfPresent(&t.Homeroom, p.Homeroom)
	return t
}

func (p TeacherPatch) IsEmpty() bool {
	return p.Email == nil && p.PasswordHash == nil && p.Name == nil && p.Pronouns == nil &&
		p.Dept == nil && p.PhotoURL == nil && p.Homeroom == nil
}

// Apply returns a copy of s with the patch applied.
func (p StudentPatch) Apply(s Student) Student {
	setIfPresent(&s.Name, p.Name)
	setIfPresent(&s.Pronouns, p.Pronouns)
	setIfPresent(&s.Dept, p.Dept)
	setIfPresent(&s.PhotoURL, p.PhotoURL)
	return s
}

func (p StudentPatch) IsEmpty() bool {
	return p.Name == nil && p.Pronouns == nil && p.Dept == nil && p.PhotoURL == nil
}

func setIfPresent(dst *string, val *string) {
	if val != nil {
		*dst = *val
	}
}
