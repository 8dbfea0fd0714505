// Package jwt issues and verifies the session tokens that identity backends
// attach to a signed-in account.
package jwt
