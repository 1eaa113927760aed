package school

import (
	"github.com/go-playground/validator/v10"

	"github.com/hcanning/homeroom/core"
	"github.com/hcanning/homeroom/core/auth"
)

var (
	errCredentialsRequired = "Email and password are required"
	errLoginFieldsMissing  = "Missing fields"
	MsgPresentNotArray     = "present must be an array of student ids"
)

type (
	// Credentials is the body of the admin setup endpoints.
	Credentials struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	Login struct {
		Role     auth.Role `json:"role" validate:"required,oneof=superadmin teacher"`
		Email    string    `json:"email" validate:"required"`
		Password string    `json:"password" validate:"required"`
	}

	NewTeacher struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
		Name     string `json:"name" validate:"required,notblank"`
		Pronouns string `json:"pronouns"`
		Dept     string `json:"dept"`
		PhotoURL string `json:"photoUrl"`
		Homeroom string `json:"homeroom"`
	}

	// UpdateTeacher is a partial update: nil fields are left untouched.
	// An empty email or password is treated as omitted.
	UpdateTeacher struct {
		Email    *string `json:"email" validate:"omitempty,email"`
		Password *string `json:"password"`
		Name     *string `json:"name"`
		Pronouns *string `json:"pronouns"`
		Dept     *string `json:"dept"`
		PhotoURL *string `json:"photoUrl"`
		Homeroom *string `json:"homeroom"`
	}

	NewStudent struct {
		Name     string `json:"name" validate:"required,notblank"`
		Pronouns string `json:"pronouns"`
		Dept     string `json:"dept"`
		PhotoURL string `json:"photoUrl"`
	}

	UpdateStudent struct {
		Name     *string `json:"name"`
		Pronouns *string `json:"pronouns"`
		Dept     *string `json:"dept"`
		PhotoURL *string `json:"photoUrl"`
	}

	SaveAttendance struct {
		Present []string `json:"present" validate:"required"`
	}
)

func (c *Credentials) Validate(validate *validator.Validate) error {
	c.Email = core.CleanString(c.Email, true /* lower */)
	if err := validate.Struct(c); err != nil {
		return core.NewValidationMessage(errCredentialsRequired)
	}
	return nil
}

func (l *Login) Validate(validate *validator.Validate) error {
	l.Email = core.CleanString(l.Email, true /* lower */)
	if err := validate.Struct(l); err != nil {
		return core.NewValidationMessage(errLoginFieldsMissing)
	}
	return nil
}

func (nt *NewTeacher) Validate(validate *validator.Validate) error {
	nt.Email = core.CleanString(nt.Email, true /* lower */)
	nt.Name = core.CleanString(nt.Name)
	return validate.Struct(nt)
}

func (upd *UpdateTeacher) Validate(validate *validator.Validate) error {
	if upd.Email != nil {
		if email := core.CleanString(*upd.Email, true /* lower */); email != "" {
			upd.Email = &email
		} else {
			upd.Email = nil
		}
	}
	if upd.Password != nil && *upd.Password == "" {
		upd.Password = nil
	}
	return validate.Struct(upd)
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	return validate.Struct(ns)
}

func (us *UpdateStudent) Validate(validate *validator.Validate) error {
	return validate.Struct(us)
}

func (sa *SaveAttendance) Validate(validate *validator.Validate) error {
	if err := validate.Struct(sa); err != nil {
		return core.NewValidationMessage(MsgPresentNotArray)
	}
	return nil
}
