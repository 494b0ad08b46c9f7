package httpserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const maxBodyBytes = 1 << 20

// Input bounds shared by the payloads below.
var (
	nameRules     = []validation.Rule{validation.Required, validation.Length(2, 100)}
	emailRules    = []validation.Rule{validation.Required, validation.Length(0, 255), is.Email}
	passwordRules = []validation.Rule{validation.Required, validation.Length(8, 128)}
	tokenRules    = []validation.Rule{validation.Required, validation.Length(2*common.MinTokenBytes, 2*common.MaxTokenBytes)}
)

type validatable interface {
	normalize()
	Validate() error
}

// decode reads a JSON body into p, trims its strings and validates it.
// Every failure matches common.ErrValidation.
func decode(r *http.Request, p validatable) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return fmt.Errorf("%w: malformed body: %v", common.ErrValidation, err)
	}
	p.normalize()
	if err := p.Validate(); err != nil {
		return &validationError{err: err}
	}
	return nil
}

// validationError keeps the per-field messages of ozzo-validation.
type validationError struct {
	err error
}

func (e *validationError) Error() string { return e.err.Error() }
func (e *validationError) Unwrap() error { return common.ErrValidation }

type RegisterPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (p *RegisterPayload) normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.TrimSpace(p.Email)
}

func (p RegisterPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, nameRules...),
		validation.Field(&p.Email, emailRules...),
		validation.Field(&p.Password, passwordRules...),
	)
}

type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (p *LoginPayload) normalize() { p.Email = strings.TrimSpace(p.Email) }

func (p LoginPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, emailRules...),
		validation.Field(&p.Password, passwordRules...),
	)
}

type RefreshPayload struct {
	RefreshToken string `json:"refreshToken"`
}

func (p *RefreshPayload) normalize() { p.RefreshToken = strings.TrimSpace(p.RefreshToken) }

func (p RefreshPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.RefreshToken, tokenRules...),
	)
}

type ForgotPasswordPayload struct {
	Email string `json:"email"`
}

func (p *ForgotPasswordPayload) normalize() { p.Email = strings.TrimSpace(p.Email) }

func (p ForgotPasswordPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, emailRules...),
	)
}

type ResetPasswordPayload struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (p *ResetPasswordPayload) normalize() { p.Token = strings.TrimSpace(p.Token) }

func (p ResetPasswordPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Token, tokenRules...),
		validation.Field(&p.Password, passwordRules...),
	)
}

type ChangePasswordPayload struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (p *ChangePasswordPayload) normalize() {}

func (p ChangePasswordPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.CurrentPassword, validation.Required),
		validation.Field(&p.NewPassword, passwordRules...),
	)
}

type CreateUserPayload struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
}

func (p *CreateUserPayload) normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.TrimSpace(p.Email)
	if p.Role == "" {
		p.Role = models.RoleUser
	}
}

func (p CreateUserPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, nameRules...),
		validation.Field(&p.Email, emailRules...),
		validation.Field(&p.Password, passwordRules...),
		validation.Field(&p.Role, validation.In(models.RoleUser, models.RoleAdmin)),
	)
}

// UpdateUserPayload fields are optional; absent ones stay unchanged.
type UpdateUserPayload struct {
	Name   *string        `json:"name"`
	Email  *string        `json:"email"`
	Role   *models.Role   `json:"role"`
	Status *models.Status `json:"status"`
}

func (p *UpdateUserPayload) normalize() {
	if p.Name != nil {
		*p.Name = strings.TrimSpace(*p.Name)
	}
	if p.Email != nil {
		*p.Email = strings.TrimSpace(*p.Email)
	}
}

func (p UpdateUserPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.NilOrNotEmpty, validation.Length(2, 100)),
		validation.Field(&p.Email, validation.NilOrNotEmpty, validation.Length(0, 255), is.Email),
		validation.Field(&p.Role, validation.NilOrNotEmpty, validation.In(models.RoleUser, models.RoleAdmin)),
		validation.Field(&p.Status, validation.NilOrNotEmpty,
			validation.In(models.StatusActive, models.StatusSuspended, models.StatusDeleted)),
	)
}

func (p UpdateUserPayload) update() models.UserUpdate {
	return models.UserUpdate{Name: p.Name, Email: p.Email, Role: p.Role, Status: p.Status}
}
