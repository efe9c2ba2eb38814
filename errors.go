package accounts

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeUnauthenticated         = "UNAUTHENTICATED"
	TextCodeTokenMalformed          = "TOKEN_MALFORMED"
	TextCodeTokenExpired            = "TOKEN_EXPIRED"
	TextCodeTokenSignatureMismatch  = "TOKEN_SIGNATURE_MISMATCH"
	TextCodeInvalidCreds            = "INVALID_CREDENTIALS"
	TextCodeForbidden               = "FORBIDDEN"
	TextCodeAccountDisabled         = "ACCOUNT_DISABLED"
	TextCodeInvalidOrExpiredToken   = "INVALID_OR_EXPIRED_TOKEN"
	TextCodeLastSuperadmin          = "LAST_SUPERADMIN"
	TextCodeNoApproversAvailable    = "NO_APPROVERS_AVAILABLE"
	TextCodeDispatchFailure         = "DISPATCH_FAILURE"
	TextCodeConfigError             = "CONFIG_ERROR"
	TextCodeAccountNotFound         = "ACCOUNT_NOT_FOUND"
	TextCodeEmailTaken              = "EMAIL_TAKEN"
	TextCodeEmptyPassword           = "EMPTY_PASSWORD"
	TextCodeInvalidInput            = "INVALID_INPUT"
	TextCodeTooManyRequests         = "TOO_MANY_REQUESTS"
	TextCodeInvalidAccountOperation = "INVALID_ACCOUNT_OPERATION"
	TextCodeConcurrentUpdate        = "CONCURRENT_UPDATE"
)

// ErrUnauthenticated no valid identity was presented
var ErrUnauthenticated = goerrors.New("not authorized, no valid session", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(http.StatusUnauthorized)

// ErrTokenMalformed the session token could not be parsed
var ErrTokenMalformed = goerrors.New("session token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(http.StatusUnauthorized)

// ErrTokenExpired the session token is past its expiry
var ErrTokenExpired = goerrors.New("session token has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(http.StatusUnauthorized)

// ErrTokenSignatureMismatch the session token was not signed with our key
var ErrTokenSignatureMismatch = goerrors.New("session token signature is invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenSignatureMismatch).
	WithCode(http.StatusUnauthorized)

// ErrMismatchedHashAndPassword unknown email and wrong password are reported alike
var ErrMismatchedHashAndPassword = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(http.StatusUnauthorized)

// ErrForbidden the identity lacks the required capability
var ErrForbidden = goerrors.New("access denied", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(goerrors.CodeForbidden)

// ErrAccountDisabled a disabled account tried to authenticate
var ErrAccountDisabled = goerrors.New("account has been disabled", goerrors.CategoryAuthz).
	WithTextCode(TextCodeAccountDisabled).
	WithCode(goerrors.CodeForbidden)

// ErrInvalidOrExpiredToken covers unknown, consumed and expired one shot tokens
var ErrInvalidOrExpiredToken = goerrors.New("invalid or expired token", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidOrExpiredToken).
	WithCode(goerrors.CodeBadRequest)

// ErrLastSuperadmin disabling the target would leave no active superadmin
var ErrLastSuperadmin = goerrors.New("cannot disable the last active superadmin", goerrors.CategoryConflict).
	WithTextCode(TextCodeLastSuperadmin).
	WithCode(goerrors.CodeConflict)

// ErrNoApproversAvailable there is no active superadmin to approve a recovery
var ErrNoApproversAvailable = goerrors.New("no active superadmins available to approve", goerrors.CategoryOperation).
	WithTextCode(TextCodeNoApproversAvailable).
	WithCode(http.StatusServiceUnavailable)

// ErrDispatchFailure the notifier could not deliver a message
var ErrDispatchFailure = goerrors.New("notification could not be sent", goerrors.CategoryOperation).
	WithTextCode(TextCodeDispatchFailure).
	WithCode(http.StatusBadGateway)

// ErrConfig the configuration is unusable
var ErrConfig = goerrors.New("invalid configuration", goerrors.CategoryInternal).
	WithTextCode(TextCodeConfigError).
	WithCode(goerrors.CodeInternal)

// ErrAccountNotFound no account matches the reference
var ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrEmailTaken signup with an email that already exists
var ErrEmailTaken = goerrors.New("an account with this email already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(goerrors.CodeConflict)

// ErrNoEmptyString empty passwords are never hashed
var ErrNoEmptyString = goerrors.New("password can't be an empty string", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidInput the request payload failed validation
var ErrInvalidInput = goerrors.New("invalid input", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidInput).
	WithCode(goerrors.CodeBadRequest)

// ErrTooManyRequests the caller exceeded the request budget
var ErrTooManyRequests = goerrors.New("too many requests, please try again later", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyRequests).
	WithCode(http.StatusTooManyRequests)

// ErrInvalidAccountOperation the transition does not apply to the account
var ErrInvalidAccountOperation = goerrors.New("operation not allowed for this account", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidAccountOperation).
	WithCode(goerrors.CodeBadRequest)

// ErrConcurrentUpdate a transaction kept losing serialization races
var ErrConcurrentUpdate = goerrors.New("the account was changed concurrently, please retry", goerrors.CategoryConflict).
	WithTextCode(TextCodeConcurrentUpdate).
	WithCode(goerrors.CodeConflict)

// HasTextCode reports whether err, or an error it wraps, carries code
func HasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if richErr.TextCode == code {
			return true
		}
		if richErr.Source != nil {
			return HasTextCode(richErr.Source, code)
		}
	}
	return false
}

// IsTokenError reports session token failures that map to 401
func IsTokenError(err error) bool {
	return errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenMalformed) ||
		errors.Is(err, ErrTokenSignatureMismatch) ||
		HasTextCode(err, TextCodeTokenExpired) ||
		HasTextCode(err, TextCodeTokenMalformed) ||
		HasTextCode(err, TextCodeTokenSignatureMismatch)
}

var statusByTextCode = map[string]int{
	TextCodeUnauthenticated:         http.StatusUnauthorized,
	TextCodeTokenMalformed:          http.StatusUnauthorized,
	TextCodeTokenExpired:            http.StatusUnauthorized,
	TextCodeTokenSignatureMismatch:  http.StatusUnauthorized,
	TextCodeInvalidCreds:            http.StatusUnauthorized,
	TextCodeForbidden:               http.StatusForbidden,
	TextCodeAccountDisabled:         http.StatusForbidden,
	TextCodeInvalidOrExpiredToken:   http.StatusBadRequest,
	TextCodeInvalidInput:            http.StatusBadRequest,
	TextCodeEmptyPassword:           http.StatusBadRequest,
	TextCodeInvalidAccountOperation: http.StatusBadRequest,
	TextCodeAccountNotFound:         http.StatusNotFound,
	TextCodeLastSuperadmin:          http.StatusConflict,
	TextCodeEmailTaken:              http.StatusConflict,
	TextCodeConcurrentUpdate:        http.StatusConflict,
	TextCodeTooManyRequests:         http.StatusTooManyRequests,
	TextCodeNoApproversAvailable:    http.StatusServiceUnavailable,
	TextCodeDispatchFailure:         http.StatusBadGateway,
	TextCodeConfigError:             http.StatusInternalServerError,
}

// HTTPStatus maps an error to the status the HTTP boundary responds with.
// Unclassified errors are 500.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var richErr *goerrors.Error
	for cur := err; cur != nil; {
		if !goerrors.As(cur, &richErr) {
			break
		}
		if status, ok := statusByTextCode[richErr.TextCode]; ok {
			return status
		}
		cur = richErr.Source
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the message safe to show to a caller
func PublicMessage(err error) string {
	var richErr *goerrors.Error
	for cur := err; cur != nil; {
		if !goerrors.As(cur, &richErr) {
			break
		}
		if _, ok := statusByTextCode[richErr.TextCode]; ok {
			return richErr.Message
		}
		cur = richErr.Source
	}
	return "internal server error"
}
