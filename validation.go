package rideAuth

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MinPasswordLength is the shortest password accepted before dispatch.
const MinPasswordLength = 6

// User-facing messages. UI error highlighting matches on the substrings
// "email" and "password", so these must not change.
const (
	MsgEmailRequired         = "Email is required"
	MsgEmailInvalidFormat    = "Please enter a valid email address"
	MsgPasswordRequired      = "Password is required"
	MsgPasswordTooShort      = "Password must be at least 6 characters long"
	MsgFullNameRequired      = "Full name is required"
	MsgEmailNotVerified      = "Please verify your email address before signing in"
	MsgNoSuchAccount         = "No account exists with this email"
	MsgInvalidCredentials    = "Invalid email or password"
	msgSignInFailedPrefix    = "Sign in failed: "
	msgSignUpFailedPrefix    = "Sign up failed: "
	msgFederatedFailedPrefix = "Google sign in failed: "
)

// emailPattern accepts a local-part "@" label followed by at least one
// dotted label.
var emailPattern = regexp.MustCompile(
	`^[a-zA-Z0-9+._%\-]{1,256}@[a-zA-Z0-9][a-zA-Z0-9\-]{0,64}(\.[a-zA-Z0-9][a-zA-Z0-9\-]{0,25})+$`,
)

// ValidationKind identifies which credential rule failed.
type ValidationKind uint8

const (
	// ValidationOK means every rule passed.
	ValidationOK ValidationKind = iota
	// EmailRequired means the email was empty or blank.
	EmailRequired
	// EmailInvalidFormat means the email did not look like an address.
	EmailInvalidFormat
	// PasswordRequired means the password was empty or blank.
	PasswordRequired
	// PasswordTooShort means the password had fewer than MinPasswordLength characters.
	PasswordTooShort
	// FullNameRequired means the sign-up display name was blank.
	FullNameRequired
)

// Message returns the fixed user-facing text for the kind.
func (k ValidationKind) Message() string {
	switch k {
	case EmailRequired:
		return MsgEmailRequired
	case EmailInvalidFormat:
		return MsgEmailInvalidFormat
	case PasswordRequired:
		return MsgPasswordRequired
	case PasswordTooShort:
		return MsgPasswordTooShort
	case FullNameRequired:
		return MsgFullNameRequired
	default:
		return ""
	}
}

// ValidationResult is the outcome of [ValidateCredentials].
type ValidationResult struct {
	Kind ValidationKind
}

// OK reports whether validation passed.
func (r ValidationResult) OK() bool { return r.Kind == ValidationOK }

// Message returns the user-facing text, or "" when validation passed.
func (r ValidationResult) Message() string { return r.Kind.Message() }

// Err returns a *ValidationError for failures and nil otherwise.
func (r ValidationResult) Err() error {
	if r.OK() {
		return nil
	}
	return &ValidationError{Kind: r.Kind}
}

// ValidationError is returned by controller operations rejected before any
// collaborator call. It matches ErrValidation with errors.Is.
type ValidationError struct {
	Kind ValidationKind
}

func (e *ValidationError) Error() string { return e.Kind.Message() }

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ValidateCredentials checks email and password locally. Rules run in order
// and the first failure wins. It has no side effects.
func ValidateCredentials(email, password string) ValidationResult {
	if isBlank(email) {
		return ValidationResult{Kind: EmailRequired}
	}
	if !emailPattern.MatchString(email) {
		return ValidationResult{Kind: EmailInvalidFormat}
	}
	if isBlank(password) {
		return ValidationResult{Kind: PasswordRequired}
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ValidationResult{Kind: PasswordTooShort}
	}
	return ValidationResult{Kind: ValidationOK}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
