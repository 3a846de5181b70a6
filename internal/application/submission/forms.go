package submission

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	domain "github.com/bryanwahyu/threat-analyzer/internal/domain/analysis"
)

const (
	msgRequired      = "Veuillez remplir tous les champs obligatoires"
	msgPasswordMatch = "Les mots de passe ne correspondent pas"
	msgPasswordShort = "Le mot de passe doit contenir au moins 6 caractères"
	msgEmail         = "Adresse email invalide"
	msgAppType       = "Type d'application inconnu"
	msgAttachment    = "Format de fichier non supporté (.pdf, .json, .yaml, .yml)"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("apptype", func(fl validator.FieldLevel) bool {
		return domain.KnownAppType(fl.Field().String())
	})
	_ = v.RegisterValidation("attachment", func(fl validator.FieldLevel) bool {
		return domain.AllowedAttachment(fl.Field().String())
	})
	return v
}

type LoginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterForm struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

// AnalysisForm is the new-analysis form; FileName mirrors File.Name so the
// extension can be checked by tag.
type AnalysisForm struct {
	ProjectName             string             `json:"project_name" validate:"required"`
	AppType                 string             `json:"app_type" validate:"required,apptype"`
	ArchitectureDescription string             `json:"architecture_description" validate:"required"`
	FileName                string             `json:"-" validate:"omitempty,attachment"`
	File                    *domain.Attachment `json:"-"`
}

// tags in the order their messages win when several fields fail.
var priority = []string{"required", "eqfield", "min", "email", "apptype", "attachment"}

var messages = map[string]string{
	"required":   msgRequired,
	"eqfield":    msgPasswordMatch,
	"min":        msgPasswordShort,
	"email":      msgEmail,
	"apptype":    msgAppType,
	"attachment": msgAttachment,
}

// Validate checks a form and returns a *domain.ValidationError naming the
// first problem, or nil.
func Validate(form any) error {
	switch f := form.(type) {
	case *AnalysisForm:
		trimAnalysis(f)
	case *RegisterForm:
		f.Name = strings.TrimSpace(f.Name)
		f.Email = strings.TrimSpace(f.Email)
	case *LoginForm:
		f.Email = strings.TrimSpace(f.Email)
	}

	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	for _, tag := range priority {
		for _, fe := range verrs {
			if fe.Tag() == tag {
				return &domain.ValidationError{Field: fe.Field(), Message: messages[tag]}
			}
		}
	}
	fe := verrs[0]
	return &domain.ValidationError{Field: fe.Field(), Message: msgRequired}
}

// ValidateRegistration runs the checks done before any register call.
func ValidateRegistration(f RegisterForm) error {
	return Validate(&f)
}

func trimAnalysis(f *AnalysisForm) {
	f.ProjectName = strings.TrimSpace(f.ProjectName)
	f.AppType = strings.TrimSpace(f.AppType)
	f.ArchitectureDescription = strings.TrimSpace(f.ArchitectureDescription)
	if f.File != nil {
		f.FileName = f.File.Name
	} else {
		f.FileName = ""
	}
}
