package rideAuth

import "context"

// Account is the identity backend's view of a signed-in or newly created user.
type Account struct {
	ID            string
	Email         string
	DisplayName   string
	EmailVerified bool
}

// IdentityBackend is the external service of record for email/password
// accounts. Implementations live in the identity package.
//
// SignInWithPassword errors should wrap ErrNoSuchAccount or
// ErrInvalidCredentials when they apply; any other error is reported to the
// user with its text.
type IdentityBackend interface {
	SignInWithPassword(ctx context.Context, email, password string) (Account, error)
	CreateAccount(ctx context.Context, email, password string) (Account, error)
	SetDisplayName(ctx context.Context, account Account, name string) error
	SendVerificationEmail(ctx context.Context, account Account) error
	// SignOut always succeeds from the caller's point of view.
	SignOut(ctx context.Context)
	CurrentAccount(ctx context.Context) (Account, bool)
}

// PickerIntent is the launchable handle returned by a federated provider.
// The caller opens URL; State comes back unchanged in the PickerResult.
type PickerIntent struct {
	URL   string
	State string
}

// PickerResult is the raw outcome of the provider's account picker, typically
// parsed from the redirect back to the client.
type PickerResult struct {
	State string
	Code  string
	// Error is the provider-reported error code (for example "access_denied").
	Error            string
	ErrorDescription string
}

// FederatedAccount is the account chosen in the federated picker.
type FederatedAccount struct {
	Subject       string
	Email         string
	EmailVerified bool
}

// FederatedSignInProvider drives an external account picker. Implementations
// live in the federated package.
type FederatedSignInProvider interface {
	BuildPickerIntent(ctx context.Context, webClientIDHint string) (PickerIntent, error)
	SignOut(ctx context.Context) error
	ExtractAccountFromResult(ctx context.Context, result PickerResult) (FederatedAccount, error)
}
