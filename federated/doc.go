// Package federated implements the account picker behind "Sign in with
// Google" as an OpenID Connect authorization-code flow with PKCE.
//
// [OIDCProvider.BuildPickerIntent] returns the authorization URL; the caller
// opens it and feeds the redirect back through [ParseCallback] and
// [OIDCProvider.ExtractAccountFromResult]. The id_token is verified with
// go-oidc before its email is released.
package federated
