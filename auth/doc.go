// Package auth validates the bearer credential a client presents when it
// opens a hub connection.
//
// A Validator turns a credential into an opaque account identifier or fails
// with ErrUnauthenticated. Validation is pure: it decodes and checks the
// credential and has no side effects. Token issuance belongs to the account
// service; JWTValidator.Issue exists for local development and tests.
package auth
