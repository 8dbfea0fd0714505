// Package rideAuth is the authentication core of the bike and scooter rental
// client: the state machine behind the login and sign-up screens.
//
// A [Controller] validates credentials locally, forwards them to an
// [IdentityBackend] and a [FederatedSignInProvider], and publishes a single
// [AttemptState] (Initial, Loading, Success or Error) plus the email chosen in
// the federated account picker. The presentation layer observes those values
// and re-renders; it never talks to the collaborators directly.
//
// # Architecture boundaries
//
// rideAuth is the public surface. It exposes [Controller], [Builder], [Config]
// and the collaborator contracts. Concrete collaborators live in sibling
// packages: identity (Redis and SQLite account stores), federated (OIDC account
// picker), notify (verification delivery). Exporters under metrics/export read
// [MetricsSnapshot] values.
//
// # What this package must NOT do
//
//   - Store credentials beyond the duration of one call.
//   - Import any sibling package that re-imports rideAuth (no import cycles).
//   - Retry a failed operation on its own; every failure is surfaced once.
//
// # Concurrency
//
// Operations block on collaborator calls and take a context. Only one
// operation may be in flight at a time; a second one returns [ErrBusy].
// [Controller.SignOut] is the exception: it cancels the pending operation
// and resets the state once that operation has returned.
// [Controller.Close] ties the controller to its owner's lifetime: pending calls
// are cancelled and no further state is published.
package rideAuth
