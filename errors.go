package accounts

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeMissingFields       = "MISSING_FIELDS"
	TextCodeInvalidHandle       = "INVALID_HANDLE"
	TextCodeAccountExists       = "ACCOUNT_EXISTS"
	TextCodeAccountNotFound     = "ACCOUNT_NOT_FOUND"
	TextCodeAccountDisabled     = goerrors.TextCodeAccountDisabled
	TextCodeCannotDisableSelf   = "CANNOT_DISABLE_SELF"
	TextCodeCannotDemoteSelf    = "CANNOT_DEMOTE_SELF"
	TextCodeInvalidCreds        = goerrors.TextCodeInvalidCredentials
	TextCodeInvalidRecoveryCode = "INVALID_RECOVERY_CODE"
	TextCodeUnauthenticated     = "UNAUTHENTICATED"
	TextCodeAdminRequired       = "ADMIN_REQUIRED"
	TextCodeInvalidSession      = "INVALID_SESSION"
)

// ErrMissingFields is returned when required request fields are blank
var ErrMissingFields = goerrors.New("Missing required fields", goerrors.CategoryValidation).
	WithTextCode(TextCodeMissingFields).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidHandle is returned when a handle normalizes to nothing
var ErrInvalidHandle = goerrors.New("Handle must contain letters or digits", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidHandle).
	WithCode(goerrors.CodeBadRequest)

// ErrAccountExists is returned when creating a duplicate handle
var ErrAccountExists = goerrors.New("User already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeAccountExists).
	WithCode(goerrors.CodeConflict)

// ErrAccountNotFound is returned for unknown handles
var ErrAccountNotFound = goerrors.New("User not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrAccountDisabled is returned when recovering a disabled account
var ErrAccountDisabled = goerrors.New("User is disabled", goerrors.CategoryAuthz).
	WithTextCode(TextCodeAccountDisabled).
	WithCode(goerrors.CodeForbidden)

// ErrCannotDisableSelf guards admins from locking themselves out
var ErrCannotDisableSelf = goerrors.New("Cannot disable yourself", goerrors.CategoryAuthz).
	WithTextCode(TextCodeCannotDisableSelf).
	WithCode(goerrors.CodeBadRequest)

// ErrCannotDemoteSelf guards admins from dropping their own privileges
var ErrCannotDemoteSelf = goerrors.New("Cannot demote yourself", goerrors.CategoryAuthz).
	WithTextCode(TextCodeCannotDemoteSelf).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidCredentials is the only error login reports to callers
var ErrInvalidCredentials = goerrors.New("Incorrect credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeForbidden)

// ErrInvalidRecoveryCode covers wrong, expired and already used codes
var ErrInvalidRecoveryCode = goerrors.New("Incorrect code", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidRecoveryCode).
	WithCode(goerrors.CodeForbidden)

// ErrUnauthenticated is returned when an operation needs a caller
var ErrUnauthenticated = goerrors.New("Authentication required", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrAdminRequired is returned by the admin gate for regular accounts
var ErrAdminRequired = goerrors.New("Admin access required", goerrors.CategoryAuthz).
	WithTextCode(TextCodeAdminRequired).
	WithCode(goerrors.CodeForbidden)

// ErrInvalidSession is returned when a session token can not be used
var ErrInvalidSession = goerrors.New("Invalid session", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidSession).
	WithCode(goerrors.CodeUnauthorized)

// HasTextCode reports whether err is a rich error with the given text code
func HasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}

func internalError(err error, message string) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return err
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithCode(goerrors.CodeInternal)
}
