package securefile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/hcanning/homeroom/core"
	"github.com/hcanning/homeroom/core/school"
)

const (
	DataFileName = "secure-db.json"
	KeyFileName  = "secure-key.json"
)

type (
	document struct {
		Admin      *adminDoc                           `json:"admin"`
		Teachers   map[string]teacherDoc               `json:"teachers"`
		Students   map[string]map[string]studentDoc    `json:"students"`
		Attendance map[string]map[string]attendanceDoc `json:"attendance"`
	}

	adminDoc struct {
		Email        string    `json:"email"`
		PasswordHash string    `json:"passwordHash"`
		CreatedAt    time.Time `json:"createdAt"`
	}

	teacherDoc struct {
		ID           string    `json:"id"`
		Email        string    `json:"email"`
		PasswordHash string    `json:"passwordHash"`
		Name         string    `json:"name"`
		Pronouns     string    `json:"pronouns,omitempty"`
		Dept         string    `json:"dept,omitempty"`
		PhotoURL     string    `json:"photoUrl,omitempty"`
		Homeroom     string    `json:"homeroom,omitempty"`
		CreatedAt    time.Time `json:"createdAt"`
	}

	studentDoc struct {
		ID        string    `json:"id"`
		TeacherID string    `json:"teacherId"`
		Name      string    `json:"name"`
		Pronouns  string    `json:"pronouns,omitempty"`
		Dept      string    `json:"dept,omitempty"`
		PhotoURL  string    `json:"photoUrl,omitempty"`
		CreatedAt time.Time `json:"createdAt"`
	}

	attendanceDoc struct {
		PresentIDs []string  `json:"presentIds"`
		SavedAt    time.Time `json:"savedAt"`
	}
)

// Repository keeps the whole dataset in one AES-GCM encrypted JSON file.
// Every call reads, decrypts, mutates, encrypts and rewrites the file.
// Writes are serialized within the process only.
type Repository struct {
	mu       sync.Mutex
	dataPath string
	cipher   *Cipher
}

var _ school.Repository = (*Repository)(nil)

// Open opens the store in dir, generating the key on first run and persisting an empty document
// when no data file exists yet. An existing data file that cannot be decrypted is an error.
func Open(dir string) (*Repository, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrapf(err, "creating data dir %s", dir)
	}
	exists, err := Exists(dir)
	if err != nil {
		return nil, err
	}
	// never generate a fresh key for data that already exists
	key, err := loadOrCreateKey(filepath.Join(dir, KeyFileName), !exists)
	if err != nil {
		return nil, err
	}
	return newRepository(dir, key, !exists)
}

// OpenExisting opens a store that must already exist in dir. Nothing is created.
func OpenExisting(dir string) (*Repository, error) {
	key, err := loadOrCreateKey(filepath.Join(dir, KeyFileName), false)
	if err != nil {
		return nil, err
	}
	return newRepository(dir, key, false)
}

func newRepository(dir string, key []byte, init bool) (*Repository, error) {
	c, err := NewCipher(key)
	if err != nil {
		return nil, err
	}
	repo := &Repository{dataPath: filepath.Join(dir, DataFileName), cipher: c}
	if init {
		if err = repo.write(newDocument()); err != nil {
			return nil, err
		}
	}
	// fail fast on a corrupt file or a wrong key
	if _, err = repo.read(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Exists reports whether dir holds a data file.
func Exists(dir string) (bool, error) {
	_, err := os.Stat(filepath.Join(dir, DataFileName))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrap(err, "checking data file")
}

func newDocument() *document {
	return &document{
		Teachers:   make(map[string]teacherDoc),
		Students:   make(map[string]map[string]studentDoc),
		Attendance: make(map[string]map[string]attendanceDoc),
	}
}

func (repo *Repository) read() (*document, error) {
	raw, err := os.ReadFile(repo.dataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return newDocument(), nil
		}
		return nil, errors.Wrapf(err, "reading %s", repo.dataPath)
	}

	var env Envelope
	if err = json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Wrapf(ErrDecrypt, "%s: malformed envelope", repo.dataPath)
	}
	plaintext, err := repo.cipher.Open(env)
	if err != nil {
		return nil, errors.Wrap(err, repo.dataPath)
	}

	doc := newDocument()
	if err = json.Unmarshal(plaintext, doc); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", repo.dataPath)
	}
	if doc.Teachers == nil {
		doc.Teachers = make(map[string]teacherDoc)
	}
	if doc.Students == nil {
		doc.Students = make(map[string]map[string]studentDoc)
	}
	if doc.Attendance == nil {
		doc.Attendance = make(map[string]map[string]attendanceDoc)
	}
	return doc, nil
}

func (repo *Repository) write(doc *document) error {
	plaintext, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "encoding document")
	}
	env, err := repo.cipher.Seal(plaintext)
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding envelope")
	}
	if err = atomicWriteFile(repo.dataPath, raw); err != nil {
		return errors.Wrapf(err, "writing %s", repo.dataPath)
	}
	return nil
}

// load is read for calls made while serving. A data file that stopped decrypting after Open
// cannot recover on its own, so it becomes a shutdown error.
func (repo *Repository) load() (*document, error) {
	doc, err := repo.read()
	if err != nil && errors.Cause(err) == ErrDecrypt {
		return nil, core.NewShutdownError(err.Error())
	}
	return doc, err
}

func (repo *Repository) view(fn func(doc *document) error) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	doc, err := repo.load()
	if err != nil {
		return err
	}
	return fn(doc)
}

func (repo *Repository) update(fn func(doc *document) error) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	doc, err := repo.load()
	if err != nil {
		return err
	}
	if err = fn(doc); err != nil {
		return err
	}
	return repo.write(doc)
}

// atomicWriteFile writes through a temp file in the same dir, then renames it over path.
func atomicWriteFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err = tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Admin

func (repo *Repository) GetAdmin(_ context.Context) (school.Admin, error) {
	var admin school.Admin
	err := repo.view(func(doc *document) error {
		if doc.Admin == nil {
			return school.ErrNotFound
		}
		admin = unboilAdmin(*doc.Admin)
		return nil
	})
	return admin, err
}

func (repo *Repository) SetAdmin(_ context.Context, admin school.Admin) error {
	return repo.update(func(doc *document) error {
		a := boilAdmin(admin)
		doc.Admin = &a
		return nil
	})
}

// Teachers

func (repo *Repository) GetTeacherByEmail(_ context.Context, email string) (school.Teacher, error) {
	var teacher school.Teacher
	err := repo.view(func(doc *document) error {
		t, ok := doc.teacherByEmail(email)
		if !ok {
			return school.ErrNotFound
		}
		teacher = unboilTeacher(t)
		return nil
	})
	return teacher, err
}

func (repo *Repository) GetTeacherByID(_ context.Context, id string) (school.Teacher, error) {
	var teacher school.Teacher
	err := repo.view(func(doc *document) error {
		t, ok := doc.Teachers[id]
		if !ok {
			return school.ErrNotFound
		}
		teacher = unboilTeacher(t)
		return nil
	})
	return teacher, err
}

func (repo *Repository) ListTeachers(_ context.Context) ([]school.Teacher, error) {
	var teachers []school.Teacher
	err := repo.view(func(doc *document) error {
		teachers = make([]school.Teacher, 0, len(doc.Teachers))
		for _, t := range doc.Teachers {
			teacher := unboilTeacher(t)
			teacher.PasswordHash = ""
			teachers = append(teachers, teacher)
		}
		return nil
	})
	sort.Slice(teachers, func(i, j int) bool {
		return newerFirst(teachers[i].CreatedAt, teachers[j].CreatedAt, teachers[i].ID, teachers[j].ID)
	})
	return teachers, err
}

func (repo *Repository) CreateTeacher(_ context.Context, teacher school.Teacher) (school.Teacher, error) {
	err := repo.update(func(doc *document) error {
		if _, ok := doc.teacherByEmail(teacher.Email); ok {
			return school.ErrEmailInUse
		}
		if _, ok := doc.Teachers[teacher.ID]; ok {
			return errors.Errorf("teacher %s already exists", teacher.ID)
		}
		doc.Teachers[teacher.ID] = boilTeacher(teacher)
		return nil
	})
	if err != nil {
		return school.Teacher{}, err
	}
	return teacher, nil
}

func (repo *Repository) UpdateTeacher(_ context.Context, id string, patch school.TeacherPatch) (school.Teacher, error) {
	var teacher school.Teacher
	err := repo.update(func(doc *document) error {
		t, ok := doc.Teachers[id]
		if !ok {
			return school.ErrNotFound
		}
		if patch.Email != nil {
			if other, ok := doc.teacherByEmail(*patch.Email); ok && other.ID != id {
				return school.ErrEmailInUse
			}
		}
		teacher = patch.Apply(unboilTeacher(t))
		doc.Teachers[id] = boilTeacher(teacher)
		return nil
	})
	return teacher, err
}

// DeleteTeacher removes the teacher, their students and their attendance.
func (repo *Repository) DeleteTeacher(_ context.Context, id string) error {
	return repo.update(func(doc *document) error {
		if _, ok := doc.Teachers[id]; !ok {
			return school.ErrNotFound
		}
		delete(doc.Teachers, id)
		delete(doc.Students, id)
		delete(doc.Attendance, id)
		return nil
	})
}

// Students

func (repo *Repository) ListStudentsByTeacher(_ context.Context, teacherID string) ([]school.Student, error) {
	var students []school.Student
	err := repo.view(func(doc *document) error {
		roster := doc.Students[teacherID]
		students = make([]school.Student, 0, len(roster))
		for _, s := range roster {
			students = append(students, unboilStudent(s))
		}
		return nil
	})
	sort.Slice(students, func(i, j int) bool {
		return newerFirst(students[i].CreatedAt, students[j].CreatedAt, students[i].ID, students[j].ID)
	})
	return students, err
}

func (repo *Repository) GetStudentByID(_ context.Context, teacherID, id string) (school.Student, error) {
	var student school.Student
	err := repo.view(func(doc *document) error {
		s, ok := doc.Students[teacherID][id]
		if !ok {
			return school.ErrNotFound
		}
		student = unboilStudent(s)
		return nil
	})
	return student, err
}

func (repo *Repository) CreateStudent(_ context.Context, student school.Student) (school.Student, error) {
	err := repo.update(func(doc *document) error {
		if _, ok := doc.Teachers[student.TeacherID]; !ok {
			return school.ErrNotFound
		}
		roster, ok := doc.Students[student.TeacherID]
		if !ok {
			roster = make(map[string]studentDoc)
			doc.Students[student.TeacherID] = roster
		}
		roster[student.ID] = boilStudent(student)
		return nil
	})
	if err != nil {
		return school.Student{}, err
	}
	return student, nil
}

func (repo *Repository) UpdateStudent(_ context.Context, teacherID, id string, patch school.StudentPatch) (school.Student, error) {
	var student school.Student
	err := repo.update(func(doc *document) error {
		s, ok := doc.Students[teacherID][id]
		if !ok {
			return school.ErrNotFound
		}
		student = patch.Apply(unboilStudent(s))
		doc.Students[teacherID][id] = boilStudent(student)
		return nil
	})
	return student, err
}

func (repo *Repository) DeleteStudent(_ context.Context, teacherID, id string) error {
	return repo.update(func(doc *document) error {
		if _, ok := doc.Students[teacherID][id]; !ok {
			return school.ErrNotFound
		}
		delete(doc.Students[teacherID], id)
		return nil
	})
}

// Attendance

func (repo *Repository) GetAttendance(_ context.Context, teacherID, date string) (school.AttendanceRecord, error) {
	var rec school.AttendanceRecord
	err := repo.view(func(doc *document) error {
		a, ok := doc.Attendance[teacherID][date]
		if !ok {
			return school.ErrNotFound
		}
		rec = unboilAttendance(teacherID, date, a)
		return nil
	})
	return rec, err
}

func (repo *Repository) SaveAttendance(_ context.Context, rec school.AttendanceRecord) (school.AttendanceRecord, error) {
	err := repo.update(func(doc *document) error {
		if _, ok := doc.Teachers[rec.TeacherID]; !ok {
			return school.ErrNotFound
		}
		days, ok := doc.Attendance[rec.TeacherID]
		if !ok {
			days = make(map[string]attendanceDoc)
			doc.Attendance[rec.TeacherID] = days
		}
		days[rec.Date] = boilAttendance(rec)
		return nil
	})
	if err != nil {
		return school.AttendanceRecord{}, err
	}
	return rec, nil
}

// Snapshot returns the whole dataset, password hashes included.
func (repo *Repository) Snapshot(_ context.Context) (school.Snapshot, error) {
	var snap school.Snapshot
	err := repo.view(func(doc *document) error {
		if doc.Admin != nil {
			admin := unboilAdmin(*doc.Admin)
			snap.Admin = &admin
		}
		for _, t := range doc.Teachers {
			snap.Teachers = append(snap.Teachers, unboilTeacher(t))
		}
		for _, roster := range doc.Students {
			for _, s := range roster {
				snap.Students = append(snap.Students, unboilStudent(s))
			}
		}
		for teacherID, days := range doc.Attendance {
			for date, a := range days {
				snap.Attendance = append(snap.Attendance, unboilAttendance(teacherID, date, a))
			}
		}
		return nil
	})
	sortSnapshot(&snap)
	return snap, err
}

func (repo *Repository) Close() error {
	return nil
}

func (doc *document) teacherByEmail(email string) (teacherDoc, bool) {
	for _, t := range doc.Teachers {
		if t.Email == email {
			return t, true
		}
	}
	return teacherDoc{}, false
}

func newerFirst(a, b time.Time, aID, bID string) bool {
	if a.Equal(b) {
		return aID < bID
	}
	return a.After(b)
}

// sortSnapshot orders parents before children so the import can insert in order.
func sortSnapshot(snap *school.Snapshot) {
	sort.Slice(snap.Teachers, func(i, j int) bool {
		return snap.Teachers[i].CreatedAt.Before(snap.Teachers[j].CreatedAt) ||
			(snap.Teachers[i].CreatedAt.Equal(snap.Teachers[j].CreatedAt) && snap.Teachers[i].ID < snap.Teachers[j].ID)
	})
	sort.Slice(snap.Students, func(i, j int) bool {
		return snap.Students[i].CreatedAt.Before(snap.Students[j].CreatedAt) ||
			(snap.Students[i].CreatedAt.Equal(snap.Students[j].CreatedAt) && snap.Students[i].ID < snap.Students[j].ID)
	})
	sort.Slice(snap.Attendance, func(i, j int) bool {
		a, b := snap.Attendance[i], snap.Attendance[j]
		if a.TeacherID != b.TeacherID {
			return a.TeacherID < b.TeacherID
		}
		return a.Date < b.Date
	})
}
