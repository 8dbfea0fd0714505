package rideAuth

import "errors"

var (
	// ErrValidation matches every *ValidationError returned by controller operations.
	ErrValidation = errors.New("credential validation failed")
	// ErrBusy is returned when an operation is issued while another is in flight.
	ErrBusy = errors.New("authentication operation already in flight")
	// ErrInterruptedBySignOut is returned by an operation cancelled by a concurrent SignOut.
	ErrInterruptedBySignOut = errors.New("operation interrupted by sign out")
	// ErrControllerClosed is returned once the owning surface has closed the controller.
	ErrControllerClosed = errors.New("controller closed")
	// ErrBackendRequired is returned by Build when no identity backend was supplied.
	ErrBackendRequired = errors.New("identity backend required")
	// ErrFederatedUnavailable is returned by federated operations without a provider.
	ErrFederatedUnavailable = errors.New("federated sign-in provider not configured")
	// ErrEmailUnverified is returned by SignIn when verification is required and missing.
	ErrEmailUnverified = errors.New("email address not verified")

	// ErrNoSuchAccount is wrapped by backends when the email has no account.
	ErrNoSuchAccount = errors.New("no such account")
	// ErrInvalidCredentials is wrapped by backends when the password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountExists is wrapped by backends when CreateAccount hits a taken email.
	ErrAccountExists = errors.New("account already exists")
	// ErrSignInRateLimited is wrapped by backends that throttle password attempts.
	ErrSignInRateLimited = errors.New("sign in rate limited")
	// ErrVerificationInvalid is wrapped by backends for unknown or expired verification tokens.
	ErrVerificationInvalid = errors.New("email verification token invalid")
	// ErrNotSignedIn is wrapped by backends when an account operation needs a session.
	ErrNotSignedIn = errors.New("not signed in")

	// ErrFederatedCancelled is wrapped by providers when the user dismissed the picker.
	ErrFederatedCancelled = errors.New("account selection cancelled")
	// ErrFederatedStateMismatch is wrapped by providers when a picker result is unknown or replayed.
	ErrFederatedStateMismatch = errors.New("account picker state mismatch")
)
