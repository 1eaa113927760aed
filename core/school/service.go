package school

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hcanning/homeroom/core"
	"github.com/hcanning/homeroom/core/auth"
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, stored string) bool
}

type Service struct {
	repo     Repository
	hasher   PasswordHasher
	validate *validator.Validate
}

func NewService(repo Repository, hasher PasswordHasher, validate *validator.Validate) *Service {
	return &Service{repo: repo, hasher: hasher, validate: validate}
}

// Admin

func (svc *Service) AdminConfigured(ctx context.Context) (bool, error) {
	if _, err := svc.repo.GetAdmin(ctx); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return false, nil
		}
		return false, errors.Wrap(err, "getting admin")
	}
	return true, nil
}

// SetupAdmin creates the admin account. It fails if one is already configured.
func (svc *Service) SetupAdmin(ctx context.Context, data Credentials) error {
	if err := data.Validate(svc.validate); err != nil {
		return err
	}
	configured, err := svc.AdminConfigured(ctx)
	if err != nil {
		return err
	}
	if configured {
		return core.NewValidationError(ErrAdminConfigured)
	}
	return svc.setAdmin(ctx, data)
}

// ForceSetupAdmin overwrites the admin account. Teachers and students are kept.
func (svc *Service) ForceSetupAdmin(ctx context.Context, data Credentials) error {
	if err := data.Validate(svc.validate); err != nil {
		return err
	}
	return svc.setAdmin(ctx, data)
}

func (svc *Service) setAdmin(ctx context.Context, data Credentials) error {
	hash, err := svc.hasher.Hash(data.Password)
	if err != nil {
		return errors.Wrap(err, "hashing password")
	}
	admin := Admin{Email: data.Email, PasswordHash: hash, CreatedAt: timestamp(NowFunc())}
	if err = svc.repo.SetAdmin(ctx, admin); err != nil {
		return errors.Wrap(err, "setting admin")
	}
	return nil
}

// Login checks the credentials for the given role and returns the session subject.
// Unknown email, wrong password and missing admin all yield ErrInvalidCredentials.
func (svc *Service) Login(ctx context.Context, data Login) (string, error) {
	if err := data.Validate(svc.validate); err != nil {
		return "", err
	}

	switch data.Role {
	case auth.RoleSuperadmin:
		admin, err := svc.repo.GetAdmin(ctx)
		if err != nil {
			if errors.Cause(err) == ErrNotFound {
				return "", ErrInvalidCredentials
			}
			return "", errors.Wrap(err, "getting admin")
		}
		// verify before comparing emails so a wrong email costs as much as a wrong password
		pwdOK := svc.hasher.Verify(data.Password, admin.PasswordHash)
		if !pwdOK || admin.Email != data.Email {
			return "", ErrInvalidCredentials
		}
		return auth.AdminSubject, nil
	default:
		teacher, err := svc.repo.GetTeacherByEmail(ctx, data.Email)
		if err != nil {
			if errors.Cause(err) == ErrNotFound {
				return "", ErrInvalidCredentials
			}
			return "", errors.Wrap(err, "getting teacher by email")
		}
		if !svc.hasher.Verify(data.Password, teacher.PasswordHash) {
			return "", ErrInvalidCredentials
		}
		return teacher.ID, nil
	}
}

// Teachers

func (svc *Service) ListTeachers(ctx context.Context) ([]Teacher, error) {
	teachers, err := svc.repo.ListTeachers(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing teachers")
	}
	if teachers == nil {
		teachers = []Teacher{}
	}
	return teachers, nil
}

func (svc *Service) GetTeacher(ctx context.Context, id string) (Teacher, error) {
	return svc.repo.GetTeacherByID(ctx, id)
}

func (svc *Service) CreateTeacher(ctx context.Context, data NewTeacher) (Teacher, error) {
	if err := data.Validate(svc.validate); err != nil {
		return Teacher{}, err
	}

	if _, err := svc.repo.GetTeacherByEmail(ctx, data.Email); err == nil {
		return Teacher{}, emailError(ErrTeacherExists)
	} else if errors.Cause(err) != ErrNotFound {
		return Teacher{}, errors.Wrap(err, "checking teacher email")
	}

	hash, err := svc.hasher.Hash(data.Password)
	if err != nil {
		return Teacher{}, errors.Wrap(err, "hashing password")
	}
	teacher, err := svc.repo.CreateTeacher(ctx, Teacher{
		ID:           uuid.NewString(),
		Email:        data.Email,
		PasswordHash: hash,
		Name:         data.Name,
		Pronouns:     data.Pronouns,
		Dept:         data.Dept,
		PhotoURL:     data.PhotoURL,
		Homeroom:     data.Homeroom,
		CreatedAt:    timestamp(NowFunc()),
	})
	if err != nil {
		if errors.Cause(err) == ErrEmailInUse {
			return Teacher{}, emailError(ErrTeacherExists)
		}
		return Teacher{}, errors.Wrap(err, "creating teacher")
	}
	return teacher, nil
}

func (svc *Service) UpdateTeacher(ctx context.Context, id string, data UpdateTeacher) (Teacher, error) {
	if err := data.Validate(svc.validate); err != nil {
		return Teacher{}, err
	}

	patch := TeacherPatch{
		Email:    data.Email,
		Name:     data.Name,
		Pronouns: data.Pronouns,
		Dept:     data.Dept,
		PhotoURL: data.PhotoURL,
		Homeroom: data.Homeroom,
	}
	if data.Email != nil {
		other, err := svc.repo.GetTeacherByEmail(ctx, *data.Email)
		if err == nil && other.ID != id {
			return Teacher{}, emailError(ErrEmailInUse)
		} else if err != nil && errors.Cause(err) != ErrNotFound {
			return Teacher{}, errors.Wrap(err, "checking teacher email")
		}
	}
	if data.Password != nil {
		hash, err := svc.hasher.Hash(*data.Password)
		if err != nil {
			return Teacher{}, errors.Wrap(err, "hashing password")
		}
		patch.PasswordHash = &hash
	}

	teacher, err := svc.repo.UpdateTeacher(ctx, id, patch)
	if err != nil {
		switch errors.Cause(err) {
		case ErrNotFound:
			return Teacher{}, ErrNotFound
		case ErrEmailInUse:
			return Teacher{}, emailError(ErrEmailInUse)
		}
		return Teacher{}, errors.Wrap(err, "updating teacher")
	}
	return teacher, nil
}

// DeleteTeacher removes the teacher along with their students and attendance.
func (svc *Service) DeleteTeacher(ctx context.Context, id string) error {
	return svc.repo.DeleteTeacher(ctx, id)
}

// Students

func (svc *Service) ListStudents(ctx context.Context, teacherID string) ([]Student, error) {
	students, err := svc.repo.ListStudentsByTeacher(ctx, teacherID)
	if err != nil {
		return nil, errors.Wrap(err, "listing students")
	}
	if students == nil {
		students = []Student{}
	}
	return students, nil
}

func (svc *Service) CreateStudent(ctx context.Context, teacherID string, data NewStudent) (Student, error) {
	if err := data.Validate(svc.validate); err != nil {
		return Student{}, err
	}
	if _, err := svc.repo.GetTeacherByID(ctx, teacherID); err != nil {
		return Student{}, err
	}

	student, err := svc.repo.CreateStudent(ctx, Student{
		ID:        uuid.NewString(),
		TeacherID: teacherID,
		Name:      data.Name,
		Pronouns:  data.Pronouns,
		Dept:      data.Dept,
		PhotoURL:  data.PhotoURL,
		CreatedAt: timestamp(NowFunc()),
	})
	if err != nil {
		return Student{}, errors.Wrap(err, "creating student")
	}
	return student, nil
}

// UpdateStudent patches a student owned by teacherID. Students of other teachers are ErrNotFound.
func (svc *Service) UpdateStudent(ctx context.Context, teacherID, id string, data UpdateStudent) (Student, error) {
	if err := data.Validate(svc.validate); err != nil {
		return Student{}, err
	}
	return svc.repo.UpdateStudent(ctx, teacherID, id, StudentPatch{
		Name:     data.Name,
		Pronouns: data.Pronouns,
		Dept:     data.Dept,
		PhotoURL: data.PhotoURL,
	})
}

func (svc *Service) DeleteStudent(ctx context.Context, teacherID, id string) error {
	return svc.repo.DeleteStudent(ctx, teacherID, id)
}

// Attendance

// TodayAttendance returns nil when nothing was saved today.
func (svc *Service) TodayAttendance(ctx context.Context, teacherID string) (*AttendanceRecord, error) {
	rec, err := svc.repo.GetAttendance(ctx, teacherID, DateKey(NowFunc()))
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(err, "getting attendance")
	}
	return &rec, nil
}

// SaveTodayAttendance replaces today's present set. Ids that are not current students
// of the teacher are dropped and duplicates removed, keeping first-seen order.
func (svc *Service) SaveTodayAttendance(ctx context.Context, teacherID string, data SaveAttendance) (AttendanceRecord, error) {
	if err := data.Validate(svc.validate); err != nil {
		return AttendanceRecord{}, err
	}
	if _, err := svc.repo.GetTeacherByID(ctx, teacherID); err != nil {
		return AttendanceRecord{}, err
	}

	students, err := svc.repo.ListStudentsByTeacher(ctx, teacherID)
	if err != nil {
		return AttendanceRecord{}, errors.Wrap(err, "listing students")
	}
	valid := make(map[string]bool, len(students))
	for _, s := range students {
		valid[s.ID] = true
	}

	present := make([]string, 0, len(data.Present))
	seen := make(map[string]bool, len(data.Present))
	for _, id := range data.Present {
		if valid[id] && !seen[id] {
			seen[id] = true
			present = append(present, id)
		}
	}

	now := NowFunc()
	rec, err := svc.repo.SaveAttendance(ctx, AttendanceRecord{
		TeacherID:  teacherID,
		Date:       DateKey(now),
		PresentIDs: present,
		SavedAt:    timestamp(now),
	})
	if err != nil {
		return AttendanceRecord{}, errors.Wrap(err, "saving attendance")
	}
	return rec, nil
}

func emailError(err error) error {
	return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
}
