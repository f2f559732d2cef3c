package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/proofmate/core"
)

// Roles
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

var (
	AllRoles = []string{RoleStudent, RoleTeacher, RoleAdmin}

	// roles a visitor can pick when signing up
	RegistrationRoles = []string{RoleStudent, RoleTeacher}
)

func IsValidRole(role string, allowed ...string) bool {
	if len(allowed) == 0 {
		allowed = AllRoles
	}
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

type User struct {
	ID                      int       `json:"id"`
	Name                    string    `json:"name"`
	Email                   string    `json:"email"`
	Role                    string    `json:"role"`
	Institution             string    `json:"institution"`
	EmailVerified           bool      `json:"emailVerified"`
	IsActive                bool      `json:"isActive"`
	PasswordHash            []byte    `json:"-"`
	VerificationTokenHash   string    `json:"-"`
	VerificationTokenExpiry time.Time `json:"-"` // UTC
	ResetTokenHash          string    `json:"-"`
	ResetTokenExpiry        time.Time `json:"-"` // UTC
	CreatedAt               time.Time `json:"createdAt"` // UTC
	UpdatedAt               time.Time `json:"updatedAt"` // UTC
	LastLogin               null.Time `json:"lastLogin"` // UTC, null until the first login
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u *User) IsTeacher() bool { return u.Role == RoleTeacher }
func (u *User) IsStudent() bool { return u.Role == RoleStudent }

// Profile is the public subset of a User sent along auth tokens.
type Profile struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	Institution   string `json:"institution"`
	EmailVerified bool   `json:"emailVerified"`
}

func (u *User) Profile() Profile {
	return Profile{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		Role:          u.Role,
		Institution:   u.Institution,
		EmailVerified: u.EmailVerified,
	}
}

// RegisterUser contains the information a visitor provides to sign up.
type RegisterUser struct {
	Name        string `json:"name" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required"`
	Role        string `json:"role"`
	Institution string `json:"institution"`
}

func (ru *RegisterUser) Validate(validate *validator.Validate, svc Service) error {
	ru.Name = core.CleanString(ru.Name)
	ru.Email = core.CleanString(ru.Email, true /* lower */)
	ru.Role = core.CleanString(ru.Role, true /* lower */)
	ru.Institution = core.CleanString(ru.Institution)

	if ru.Role == "" {
		ru.Role = RoleStudent
	}
	if !IsValidRole(ru.Role, RegistrationRoles...) {
		return core.NewValidationError(ErrInvalidRole)
	}
	if ru.Role == RoleTeacher && ru.Institution == "" {
		return core.NewValidationError(ErrInstitutionRequired)
	}

	if err := validate.Struct(ru); err != nil {
		return err
	}
	return svc.CheckEmailUniqueness(ru.Email)
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name        string `json:"name" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required"`
	Role        string `json:"role" validate:"omitempty,userrole"`
	Institution string `json:"institution" validate:"required_if=Role teacher"`
	IsActive    *bool  `json:"isActive"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Role = core.CleanString(nu.Role, true /* lower */)
	nu.Institution = core.CleanString(nu.Institution)
	if nu.Role == "" {
		nu.Role = RoleStudent
	}

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckEmailUniqueness(nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
// Empty fields are left untouched.
type UpdateUser struct {
	Name          string `json:"name"`
	Email         string `json:"email" validate:"omitempty,email"`
	Role          string `json:"role" validate:"omitempty,userrole"`
	Institution   string `json:"institution"`
	Password      string `json:"password"`
	IsActive      *bool  `json:"isActive"`
	EmailVerified *bool  `json:"emailVerified"`
}

func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate, svc Service) error {
	if name := core.CleanString(uu.Name); name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}
	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}
	if role := core.CleanString(uu.Role, true /* lower */); role != "" {
		uu.Role = role
	} else {
		uu.Role = origUsr.Role
	}
	if inst := core.CleanString(uu.Institution); inst != "" {
		uu.Institution = inst
	} else {
		uu.Institution = origUsr.Institution
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	if uu.Role == RoleTeacher && uu.Institution == "" {
		return core.NewValidationError(ErrInstitutionRequired)
	}
	return svc.CheckEmailUniqueness(uu.Email, origUsr)
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []string  `query:"role"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"-"` // created_from
	CreatedTo   time.Time `query:"-"` // created_to
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	roles := make([]string, 0, len(qf.Roles))
	for _, r := range qf.Roles {
		if r = core.CleanString(r, true /* lower */); r != "" {
			roles = append(roles, r)
		}
	}
	if len(roles) == 0 {
		roles = nil
	}
	qf.Roles = roles
}

// GetFilter selects a single User. The first non-zero field wins.
type GetFilter struct {
	ID                    int
	Email                 string
	ResetTokenHash        string
	VerificationTokenHash string
}
