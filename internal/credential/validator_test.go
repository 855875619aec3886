package credential

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validationErrors(t *testing.T, err error) ValidationErrors {
	t.Helper()
	var errs ValidationErrors
	require.True(t, errors.As(err, &errs), "expected ValidationErrors, got %T", err)
	return errs
}

func TestValidateAccepts(t *testing.T) {
	v := NewValidator()

	cred, err := v.Validate(Input{Username: "alice1", Email: "a@b.com", Password: "abc123"})

	require.NoError(t, err)
	assert.Equal(t, Credential{Username: "alice1", Email: "a@b.com", Password: "abc123"}, cred)
}

func TestValidateShortUsername(t *testing.T) {
	v := NewValidator()

	for _, name := range []string{"", "a", "bob", "alice", "ユーザー名"} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Validate(Input{Username: name, Email: "a@b.com", Password: "abc123"})
			errs := validationErrors(t, err)
			assert.True(t, errs.Has(FieldUsername, RuleTooShort), "%v", errs)
			assert.Len(t, errs, 1)
		})
	}
}

func TestValidateUsernameCountsCharacters(t *testing.T) {
	v := NewValidator()

	// 6文字（バイト数ではなく文字数で判定する）
	_, err := v.Validate(Input{Username: "ユーザー名前", Email: "a@b.com", Password: "abc123"})
	assert.NoError(t, err)
}

func TestValidateInvalidEmail(t *testing.T) {
	v := NewValidator()

	for _, email := range []string{"", "bad-email", "a@", "@b.com", "a b@c.com"} {
		t.Run(email, func(t *testing.T) {
			_, err := v.Validate(Input{Username: "alice1", Email: email, Password: "abc123"})
			errs := validationErrors(t, err)
			assert.Equal(t, ValidationErrors{{Field: FieldEmail, Rule: RuleInvalid, Message: errs[0].Message}}, errs)
		})
	}
}

func TestValidateWeakPasswords(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		password string
		want     []string
	}{
		{"123", []string{RuleTooShort, RuleTooWeak}},
		{"password", []string{RuleTooWeak, RuleNeedsDigit}},
		{"god", []string{RuleTooShort, RuleTooWeak, RuleNeedsDigit}},
		{"abc", []string{RuleTooShort, RuleTooWeak, RuleNeedsDigit}},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			_, err := v.Validate(Input{Username: "alice1", Email: "a@b.com", Password: tt.password})
			errs := validationErrors(t, err)
			var rules []string
			for _, fe := range errs {
				assert.Equal(t, FieldPassword, fe.Field)
				rules = append(rules, fe.Rule)
			}
			assert.Equal(t, tt.want, rules)
		})
	}
}

func TestValidateDenylistIsLiteral(t *testing.T) {
	v := NewValidator()

	for _, pw := range []string{"password1", "Password", "abc123", "god999"} {
		_, err := v.Validate(Input{Username: "alice1", Email: "a@b.com", Password: pw})
		assert.NoError(t, err, pw)
	}
}

func TestValidateNeedsDigit(t *testing.T) {
	v := NewValidator()

	for _, pw := range []string{"abcdef", "longpassphrase", "１２３４５６"} {
		_, err := v.Validate(Input{Username: "alice1", Email: "a@b.com", Password: pw})
		errs := validationErrors(t, err)
		assert.True(t, errs.Has(FieldPassword, RuleNeedsDigit), "%s: %v", pw, errs)
	}
}

func TestValidateTooLongPassword(t *testing.T) {
	v := NewValidator()

	_, err := v.Validate(Input{Username: "alice1", Email: "a@b.com", Password: strings.Repeat("a1", 37)})
	errs := validationErrors(t, err)
	assert.True(t, errs.Has(FieldPassword, RuleTooLong))

	_, err = v.Validate(Input{Username: "alice1", Email: "a@b.com", Password: strings.Repeat("a1", 36)})
	assert.NoError(t, err)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	v := NewValidator()

	_, err := v.Validate(Input{Username: "bob", Email: "bad-email", Password: "password1"})
	errs := validationErrors(t, err)

	require.Len(t, errs, 2)
	assert.True(t, errs.Has(FieldUsername, RuleTooShort))
	assert.True(t, errs.Has(FieldEmail, RuleInvalid))
}

func TestValidateIsIdempotent(t *testing.T) {
	v := NewValidator()
	in := Input{Username: "bob", Email: "nope", Password: "god"}

	_, first := v.Validate(in)
	_, second := v.Validate(in)

	assert.Equal(t, validationErrors(t, first), validationErrors(t, second))
}

func TestValidationErrorsError(t *testing.T) {
	errs := ValidationErrors{
		{Field: FieldUsername, Rule: RuleTooShort},
		{Field: FieldPassword, Rule: RuleNeedsDigit},
	}
	assert.Equal(t, "validation failed: username: too_short, password: needs_digit", errs.Error())
}
