package user

import (
	"fmt"
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
)

var (
	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"
)

// InitValidators registers the user struct validations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(newUserStructValidation, NewUser{})
	validate.RegisterStructValidation(updateUserStructValidation, UpdateUser{})
	validate.RegisterStructValidation(resetPasswordStructValidation, ResetUserPassword{})

	core.RegisterCustomTranslation(validate, translator, pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(validate, translator, pwdNoSpaceTag, pwdNoSpaceText)
	core.RegisterCustomTranslation(validate, translator, pwdNotAllNumTag, pwdNotAllNumText)
}

func validatePassword(sl validator.StructLevel, pwd, field string) {
	if len(pwd) < pwdMinLen {
		sl.ReportError(pwd, field, field, pwdMinLenTag, "")
	}
	if strings.ContainsAny(pwd, " \t\n\r") {
		sl.ReportError(pwd, field, field, pwdNoSpaceTag, "")
	}
	allNum := true
	for _, r := range pwd {
		if !unicode.IsDigit(r) {
			allNum = false
			break
		}
	}
	if allNum && pwd != "" {
		sl.ReportError(pwd, field, field, pwdNotAllNumTag, "")
	}
}

func newUserStructValidation(sl validator.StructLevel) {
	nu := sl.Current().Interface().(NewUser)
	validatePassword(sl, nu.Password, "password")
}

func updateUserStructValidation(sl validator.StructLevel) {
	uu := sl.Current().Interface().(UpdateUser)
	if uu.Password != "" {
		validatePassword(sl, uu.Password, "password")
	}
}

func resetPasswordStructValidation(sl validator.StructLevel) {
	rp := sl.Current().Interface().(ResetUserPassword)
	validatePassword(sl, rp.Password, "password")
}

func (nu NewUser) Validate(validate *validator.Validate) error {
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	return validate.Struct(nu)
}

func (uu UpdateUser) Validate(validate *validator.Validate) error {
	uu.Username = core.CleanString(uu.Username, true /* lower */)
	uu.Email = core.CleanString(uu.Email, true /* lower */)
	return validate.Struct(uu)
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error {
	return validate.Struct(rp)
}
