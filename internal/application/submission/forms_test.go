package submission

import (
	"testing"

	"github.com/stretchr/testify/assert"

	domain "github.com/bryanwahyu/threat-analyzer/internal/domain/analysis"
)

func TestValidateRegistration(t *testing.T) {
	valid := RegisterForm{Name: "Alice", Email: "alice@example.com", Password: "secret1", ConfirmPassword: "secret1"}

	cases := []struct {
		name string
		edit func(f *RegisterForm)
		want string
	}{
		{"valid form", func(*RegisterForm) {}, ""},
		{"mismatched confirmation", func(f *RegisterForm) { f.ConfirmPassword = "secret2" }, msgPasswordMatch},
		{"short password", func(f *RegisterForm) { f.Password, f.ConfirmPassword = "abc", "abc" }, msgPasswordShort},
		{"mismatch wins over length", func(f *RegisterForm) { f.Password, f.ConfirmPassword = "abc", "abd" }, msgPasswordMatch},
		{"missing name", func(f *RegisterForm) { f.Name = " " }, msgRequired},
		{"bad email", func(f *RegisterForm) { f.Email = "alice" }, msgEmail},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := valid
			tc.edit(&f)
			err := ValidateRegistration(f)
			if tc.want == "" {
				assert.NoError(t, err)
				return
			}
			var verr *domain.ValidationError
			if assert.ErrorAs(t, err, &verr) {
				assert.Equal(t, tc.want, verr.Message)
			}
		})
	}
}

func TestValidateAnalysisForm(t *testing.T) {
	f := AnalysisForm{ProjectName: "p", AppType: "Blockchain", ArchitectureDescription: "d"}
	assert.Equal(t, msgAppType, domain.Message(Validate(&f)))

	f.AppType = "Web"
	f.File = &domain.Attachment{Name: "arch.YAML"}
	assert.NoError(t, Validate(&f))
}

func TestValidateLogin(t *testing.T) {
	assert.NoError(t, Validate(&LoginForm{Email: "a@example.com", Password: "x"}))
	assert.Equal(t, msgRequired, domain.Message(Validate(&LoginForm{Email: "a@example.com"})))
}
