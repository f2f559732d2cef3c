package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/proofmate/core"
)

var (
	// errors
	ErrNotFound            = errors.New("user not found")
	ErrEmailExists         = errors.New("a user with this email already exists")
	ErrInvalidToken        = errors.New("Invalid token")
	ErrInvalidRole         = errors.New("Invalid role")
	ErrInstitutionRequired = errors.New("Institution is required for teachers")
	ErrEmailNotSent        = errors.New("Email could not be sent")
)

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Email or User.Institution.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		DeleteUsers(ctx context.Context, ids ...int) error
	}

	Service interface {
		CheckEmailUniqueness(email string, exclUsers ...User) error
		Register(ctx context.Context, data RegisterUser) (User, error)
		Create(ctx context.Context, data NewUser) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetByID(ctx context.Context, id int) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		Update(ctx context.Context, usr User, data UpdateUser) (User, error)
		Delete(ctx context.Context, ids ...int) error
		SetLastLogin(ctx context.Context, usr User) (User, error)
		SetPassword(ctx context.Context, usr User, pwd string) (User, error)
		RequestPasswordReset(ctx context.Context, email string) error
		// CheckResetToken returns the user owning the given unexpired reset token.
		CheckResetToken(ctx context.Context, token string) (User, error)
		ResetPassword(ctx context.Context, token, pwd string) (User, error)
		VerifyEmail(ctx context.Context, token string) (User, error)
	}

	service struct {
		repo     Repository
		mailSvc  core.EmailService
		conf     *core.Config
		genToken func() (string, error)
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	return &service{
		repo:     repo,
		mailSvc:  mailSvc,
		conf:     conf,
		genToken: newToken,
	}
}

func (svc *service) now() time.Time { return NowFunc().UTC() }

func (svc *service) CheckEmailUniqueness(email string, exclUsers ...User) error {
	if err := svc.repo.CheckEmailUniqueness(context.Background(), email, exclUsers...); err != nil {
		if err == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

// Register creates a student or teacher account and emails them a verification link.
// The account is kept when the email cannot be sent; only its verification token is cleared.
func (svc *service) Register(ctx context.Context, data RegisterUser) (User, error) {
	now := svc.now()
	usr := User{
		Name:        data.Name,
		Email:       data.Email,
		Role:        data.Role,
		Institution: data.Institution,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := usr.SetPassword(data.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}

	token, err := svc.genToken()
	if err != nil {
		return User{}, errors.Wrap(err, "generating verification token")
	}
	usr.VerificationTokenHash = HashToken(token)
	usr.VerificationTokenExpiry = now.Add(svc.conf.Tokens.EmailVerificationTimeout)

	usr, err = svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "creating user")
	}

	if err = svc.sendTokenMail(usr, token, "Email Verification", "verify_email"); err != nil {
		usr.VerificationTokenHash = ""
		usr.VerificationTokenExpiry = time.Time{}
		if _, uErr := svc.repo.UpdateUser(ctx, usr); uErr != nil {
			return User{}, errors.Wrap(uErr, "clearing verification token")
		}
		return usr, errors.Wrap(ErrEmailNotSent, err.Error())
	}
	return usr, nil
}

func (svc *service) Create(ctx context.Context, data NewUser) (User, error) {
	now := svc.now()
	usr := User{
		Name:        data.Name,
		Email:       data.Email,
		Role:        data.Role,
		Institution: data.Institution,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if data.IsActive != nil {
		usr.IsActive = *data.IsActive
	}
	if err := usr.SetPassword(data.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *service) GetByID(ctx context.Context, id int) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	email = core.CleanString(email, true /* lower */)
	if email == "" {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUser(ctx, GetFilter{Email: email})
}

func (svc *service) Update(ctx context.Context, usr User, data UpdateUser) (User, error) {
	usr.Name = data.Name
	usr.Email = data.Email
	usr.Role = data.Role
	usr.Institution = data.Institution
	if data.IsActive != nil {
		usr.IsActive = *data.IsActive
	}
	if data.EmailVerified != nil {
		usr.EmailVerified = *data.EmailVerified
	}
	if data.Password != "" {
		if err := usr.SetPassword(data.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	usr.UpdatedAt = svc.now()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) Delete(ctx context.Context, ids ...int) error {
	return svc.repo.DeleteUsers(ctx, ids...)
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = null.TimeFrom(svc.now())
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) SetPassword(ctx context.Context, usr User, pwd string) (User, error) {
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = svc.now()
	return svc.repo.UpdateUser(ctx, usr)
}

// RequestPasswordReset emails a short-lived reset link to the user with the given email.
func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}

	token, err := svc.genToken()
	if err != nil {
		return errors.Wrap(err, "generating reset token")
	}
	usr.ResetTokenHash = HashToken(token)
	usr.ResetTokenExpiry = svc.now().Add(svc.conf.Tokens.PasswordResetTimeout)
	if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return errors.Wrap(err, "saving reset token")
	}

	if err = svc.sendTokenMail(usr, token, "Password Reset Token", "password_reset"); err != nil {
		usr.ResetTokenHash = ""
		usr.ResetTokenExpiry = time.Time{}
		if _, uErr := svc.repo.UpdateUser(ctx, usr); uErr != nil {
			return errors.Wrap(uErr, "clearing reset token")
		}
		return errors.Wrap(ErrEmailNotSent, err.Error())
	}
	return nil
}

func (svc *service) CheckResetToken(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrInvalidToken
	}
	usr, err := svc.repo.GetUser(ctx, GetFilter{ResetTokenHash: HashToken(token)})
	if err != nil {
		if err == ErrNotFound {
			return User{}, ErrInvalidToken
		}
		return User{}, errors.Wrap(err, "finding user by reset token")
	}
	if err = verifyToken(usr.ResetTokenHash, usr.ResetTokenExpiry, token); err != nil {
		return User{}, ErrInvalidToken
	}
	return usr, nil
}

// ResetPassword sets a new password for the user owning the given unexpired reset token.
func (svc *service) ResetPassword(ctx context.Context, token, pwd string) (User, error) {
	usr, err := svc.CheckResetToken(ctx, token)
	if err != nil {
		return User{}, err
	}

	if err = usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr.ResetTokenHash = ""
	usr.ResetTokenExpiry = time.Time{}
	usr.UpdatedAt = svc.now()
	return svc.repo.UpdateUser(ctx, usr)
}

// VerifyEmail marks the email of the user owning the given unexpired verification token as verified.
func (svc *service) VerifyEmail(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrInvalidToken
	}
	usr, err := svc.repo.GetUser(ctx, GetFilter{VerificationTokenHash: HashToken(token)})
	if err != nil {
		if err == ErrNotFound {
			return User{}, ErrInvalidToken
		}
		return User{}, errors.Wrap(err, "finding user by verification token")
	}
	if err = verifyToken(usr.VerificationTokenHash, usr.VerificationTokenExpiry, token); err != nil {
		return User{}, ErrInvalidToken
	}

	usr.EmailVerified = true
	usr.VerificationTokenHash = ""
	usr.VerificationTokenExpiry = time.Time{}
	usr.UpdatedAt = svc.now()
	return svc.repo.UpdateUser(ctx, usr)
}

type tokenMailData struct {
	Name  string
	Token string
}

func (svc *service) sendTokenMail(usr User, token, subject, tmpl string) error {
	return svc.mailSvc.Send(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      subject,
		TemplateName: tmpl,
		TemplateData: tokenMailData{Name: usr.Name, Token: token},
	})
}
