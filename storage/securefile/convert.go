package securefile

import "github.com/hcanning/homeroom/core/school"

func boilAdmin(a school.Admin) adminDoc {
	return adminDoc{Email: a.Email, PasswordHash: a.PasswordHash, CreatedAt: a.CreatedAt}
}

func unboilAdmin(a adminDoc) school.Admin {
	return school.Admin{Email: a.Email, PasswordHash: a.PasswordHash, CreatedAt: a.CreatedAt}
}

func boilTeacher(t school.Teacher) teacherDoc {
	return teacherDoc{
		ID:           t.ID,
		Email:        t.Email,
		PasswordHash: t.PasswordHash,
		Name:         t.Name,
		Pronouns:     t.Pronouns,
		Dept:         t.Dept,
		PhotoURL:     t.PhotoURL,
		Homeroom:     t.Homeroom,
		CreatedAt:    t.CreatedAt,
	}
}

func unboilTeacher(t teacherDoc) school.Teacher {
	return school.Teacher{
		ID:           t.ID,
		Email:        t.Email,
		PasswordHash: t.PasswordHash,
		Name:         t.Name,
		Pronouns:     t.Pronouns,
		Dept:         t.Dept,
		PhotoURL:     t.PhotoURL,
		Homeroom:     t.Homeroom,
		CreatedAt:    t.CreatedAt,
	}
}

func boilStudent(s school.Student) studentDoc {
	return studentDoc{
		ID:        s.ID,
		TeacherID: s.TeacherID,
		Name:      s.Name,
		Pronouns:  s.Pronouns,
		Dept:      s.Dept,
		PhotoURL:  s.PhotoURL,
		CreatedAt: s.CreatedAt,
	}
}

func unboilStudent(s studentDoc) school.Student {
	return school.Student{
		ID:        s.ID,
		TeacherID: s.TeacherID,
		Name:      s.Name,
		Pronouns:  s.Pronouns,
		Dept:      s.Dept,
		PhotoURL:  s.PhotoURL,
		CreatedAt: s.CreatedAt,
	}
}

func boilAttendance(rec school.AttendanceRecord) attendanceDoc {
	ids := make([]string, len(rec.PresentIDs))
	copy(ids, rec.PresentIDs)
	return attendanceDoc{PresentIDs: ids, SavedAt: rec.SavedAt}
}

func unboilAttendance(teacherID, date string, a attendanceDoc) school.AttendanceRecord {
	ids := a.PresentIDs
	if ids == nil {
		ids = []string{}
	}
	return school.AttendanceRecord{TeacherID: teacherID, Date: date, PresentIDs: ids, SavedAt: a.SavedAt}
}
