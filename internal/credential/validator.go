// Package credential は登録入力の形式・強度チェックを提供します。
package credential

import (
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// フィールド名
const (
	FieldUsername = "username"
	FieldEmail    = "email"
	FieldPassword = "password"
)

// ルール名（レスポンスの rule にそのまま載せる）
const (
	RuleTooShort   = "too_short"
	RuleInvalid    = "invalid"
	RuleTooWeak    = "too_weak"
	RuleNeedsDigit = "needs_digit"
	RuleTooLong    = "too_long"
	RuleTaken      = "taken"
)

const (
	MinUsernameLength = 6
	MinPasswordLength = 6
	// bcrypt が受け付ける入力の上限（バイト）
	MaxPasswordBytes = 72
)

// weakPasswords は完全一致で拒否するパスワードです。
var weakPasswords = map[string]struct{}{
	"123":      {},
	"password": {},
	"god":      {},
	"abc":      {},
}

// Input は登録フォームから受け取る生の入力です。
type Input struct {
	Username string `form:"username" json:"username"`
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Credential は検証済みの登録情報です。
type Credential struct {
	Username string
	Email    string
	Password string
}

// FieldError はフィールド単位の検証エラーです。
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationErrors は収集したすべての FieldError を保持します。
type ValidationErrors []FieldError

func (e ValidationErrors) Error() string {
	parts := make([]string, len(e))
	for i, fe := range e {
		parts[i] = fe.Field + ": " + fe.Rule
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Has は指定フィールド・ルールのエラーが含まれるかを返します。
func (e ValidationErrors) Has(field, rule string) bool {
	for _, fe := range e {
		if fe.Field == field && fe.Rule == rule {
			return true
		}
	}
	return false
}

// Validator は登録入力を検証します。状態を持たないため並行利用できます。
type Validator struct {
	v *validator.Validate
}

// NewValidator は Validator を作成します。
func NewValidator() *Validator {
	return &Validator{v: validator.New()}
}

// Validate は全ルールを個別に適用し、違反をすべて返します。
// 違反がなければ Credential を返します。
func (v *Validator) Validate(in Input) (Credential, error) {
	var errs ValidationErrors

	if utf8.RuneCountInString(in.Username) < MinUsernameLength {
		errs = append(errs, FieldError{
			Field:   FieldUsername,
			Rule:    RuleTooShort,
			Message: "ユーザー名は6文字以上で入力してください。",
		})
	}

	if err := v.v.Var(in.Email, "required,email"); err != nil {
		errs = append(errs, FieldError{
			Field:   FieldEmail,
			Rule:    RuleInvalid,
			Message: "有効なメールアドレスを入力してください。",
		})
	}

	errs = append(errs, checkPassword(in.Password)...)

	if len(errs) > 0 {
		return Credential{}, errs
	}

	return Credential{
		Username: in.Username,
		Email:    in.Email,
		Password: in.Password,
	}, nil
}

func checkPassword(password string) ValidationErrors {
	var errs ValidationErrors

	if utf8.RuneCountInString(password) < MinPasswordLength {
		errs = append(errs, FieldError{
			Field:   FieldPassword,
			Rule:    RuleTooShort,
			Message: "パスワードは6文字以上で入力してください。",
		})
	}
	if len(password) > MaxPasswordBytes {
		errs = append(errs, FieldError{
			Field:   FieldPassword,
			Rule:    RuleTooLong,
			Message: "パスワードが長すぎます。72バイト以内で入力してください。",
		})
	}
	if _, weak := weakPasswords[password]; weak {
		errs = append(errs, FieldError{
			Field:   FieldPassword,
			Rule:    RuleTooWeak,
			Message: "パスワードが弱すぎます。別のパスワードを入力してください。",
		})
	}
	if !containsDigit(password) {
		errs = append(errs, FieldError{
			Field:   FieldPassword,
			Rule:    RuleNeedsDigit,
			Message: "パスワードには数字を1文字以上含めてください。",
		})
	}

	return errs
}

func containsDigit(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			return true
		}
	}
	return false
}
