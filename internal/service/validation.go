package service

import (
	"net/mail"
	"strings"
	"unicode"
)

const (
	PasswordMinLength = 8
	// bcrypt ignores everything past 72 bytes.
	PasswordMaxBytes = 72
	PasswordSymbols  = "@$!%*?&"
	EmailMaxLength   = 320
)

func validateEmail(fields map[string]string, email string) {
	email = strings.TrimSpace(email)
	switch {
	case email == "":
		fields["email"] = "Email is required"
	case len(email) > EmailMaxLength:
		fields["email"] = "Invalid email address"
	default:
		addr, err := mail.ParseAddress(email)
		if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndexByte(email, '@')+1:], ".") {
			fields["email"] = "Invalid email address"
		}
	}
}

func validatePasswordPolicy(fields map[string]string, password string) {
	var lower, upper, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(PasswordSymbols, r):
			symbol = true
		}
	}
	switch {
	case len([]rune(password)) < PasswordMinLength:
		fields["password"] = "Password must be at least 8 characters long"
	case len(password) > PasswordMaxBytes:
		fields["password"] = "Password must be at most 72 bytes long"
	case !lower:
		fields["password"] = "Password must contain at least one lowercase letter"
	case !upper:
		fields["password"] = "Password must contain at least one uppercase letter"
	case !digit:
		fields["password"] = "Password must contain at least one number"
	case !symbol:
		fields["password"] = "Password must contain at least one special character (" + PasswordSymbols + ")"
	}
}

// ValidateSignup checks the shape of new credentials.
func ValidateSignup(email, password string) error {
	fields := map[string]string{}
	validateEmail(fields, email)
	validatePasswordPolicy(fields, password)
	return fieldsError(fields)
}

// ValidateLogin only checks shape; the password policy is not applied so
// accounts created under an older policy can still sign in.
func ValidateLogin(email, password string) error {
	fields := map[string]string{}
	validateEmail(fields, email)
	if password == "" {
		fields["password"] = "Password is required"
	}
	return fieldsError(fields)
}

func ValidateEmailAddress(email string) error {
	fields := map[string]string{}
	validateEmail(fields, email)
	return fieldsError(fields)
}

func ValidateNewPassword(password string) error {
	fields := map[string]string{}
	validatePasswordPolicy(fields, password)
	return fieldsError(fields)
}

func fieldsError(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return invalidInput(fields)
}
