package accounts

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

const (
	// DefaultContextKey is where the session middleware stores the account
	DefaultContextKey = "account"
	// DefaultTokenLookup reads the bearer header first, then the cookie
	DefaultTokenLookup = "header:Authorization,cookie:token"
	// DefaultAuthScheme is the Authorization header scheme
	DefaultAuthScheme = "Bearer"
	// SessionCookieName is the cookie carrying the session token
	SessionCookieName = "token"
)

// TokenSource is the part of a request token extractors read from.
// router.Context satisfies it.
type TokenSource interface {
	Header(key string) string
	Cookies(key string, defaultValue ...string) string
	Query(key string, defaultValue string) string
	Param(key string, defaultValue ...string) string
}

// TokenExtractor pulls a raw token out of a request
type TokenExtractor func(c TokenSource) (string, error)

// GetExtractors parses a lookup such as
// "header:Authorization,cookie:token,query:token,param:token"
func GetExtractors(tokenLookup string, authSchemes ...string) []TokenExtractor {
	extractors := make([]TokenExtractor, 0)

	authScheme := DefaultAuthScheme
	if len(authSchemes) > 0 && strings.TrimSpace(authSchemes[0]) != "" {
		authScheme = strings.TrimSpace(authSchemes[0])
	}

	for _, rootPart := range strings.Split(tokenLookup, ",") {
		parts := strings.SplitN(strings.TrimSpace(rootPart), ":", 2)
		if len(parts) != 2 {
			continue
		}
		source, name := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])

		switch source {
		case "header":
			extractors = append(extractors, tokenFromHeader(name, authScheme))
		case "query":
			extractors = append(extractors, tokenFromQuery(name))
		case "param":
			extractors = append(extractors, tokenFromParam(name))
		case "cookie":
			extractors = append(extractors, tokenFromCookie(name))
		}
	}

	return extractors
}

// ExtractRawToken returns the first token any extractor finds
func ExtractRawToken(c TokenSource, extractors []TokenExtractor) (string, error) {
	for _, extractor := range extractors {
		raw, err := extractor(c)
		if raw != "" && err == nil {
			return raw, nil
		}
	}
	return "", ErrUnauthenticated
}

func tokenFromHeader(header, authScheme string) TokenExtractor {
	return func(c TokenSource) (string, error) {
		a := c.Header(header)
		l := len(authScheme)
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) && a[l] == ' ' {
			return strings.TrimSpace(a[l:]), nil
		}
		return "", ErrUnauthenticated
	}
}

func tokenFromQuery(param string) TokenExtractor {
	return func(c TokenSource) (string, error) {
		if token := c.Query(param, ""); token != "" {
			return token, nil
		}
		return "", ErrUnauthenticated
	}
}

func tokenFromParam(param string) TokenExtractor {
	return func(c TokenSource) (string, error) {
		if token := c.Param(param); token != "" {
			return token, nil
		}
		return "", ErrUnauthenticated
	}
}

func tokenFromCookie(name string) TokenExtractor {
	return func(c TokenSource) (string, error) {
		if token := c.Cookies(name); token != "" {
			return token, nil
		}
		return "", ErrUnauthenticated
	}
}

// ErrorBody builds the status and JSON body for err. Internal details are
// only exposed when debug is set.
func ErrorBody(err error, debug bool) (int, map[string]any) {
	status := HTTPStatus(err)
	body := map[string]any{
		"status":  "error",
		"message": PublicMessage(err),
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if richErr.TextCode != "" && status < http.StatusInternalServerError {
			body["code"] = richErr.TextCode
		}
		if fields, ok := richErr.Metadata["fields"]; ok && status == http.StatusBadRequest {
			body["errors"] = fields
		}
	}

	if debug && err != nil {
		body["detail"] = err.Error()
	}

	return status, body
}

// WriteError sends err as a JSON error response
func WriteError(c router.Context, err error, debug bool, logger Logger) error {
	if logger == nil {
		logger = defLogger{}
	}

	status, body := ErrorBody(err, debug)

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && status >= http.StatusInternalServerError {
		logger.Error("request failed path=%s category=%s details=%s: %v",
			c.OriginalURL(), richErr.Category, print.MaybePrettyJSON(richErr.Metadata), err)
	} else if status >= http.StatusInternalServerError {
		logger.Error("request failed path=%s: %v", c.OriginalURL(), err)
	}

	return c.JSON(status, body)
}
