package massar

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline failure. It implements error so that
// consumers can use errors.Is(err, massar.LoginRejected).
type ErrorKind int

const (
	// TokenMissing means the login page did not contain the anti-forgery token.
	TokenMissing ErrorKind = iota + 1
	// LoginRejected means the portal did not accept the credentials.
	LoginRejected
	// EmptyResponse means the report endpoint returned nothing.
	EmptyResponse
	// UnexpectedShape means the report endpoint returned something that is
	// not a report card (expired session, invalid query, error page).
	UnexpectedShape
	// NetworkError covers timeouts, dns, tls and connection failures.
	NetworkError
)

func (k ErrorKind) String() string {
	switch k {
	case TokenMissing:
		return "TokenMissing"
	case LoginRejected:
		return "LoginRejected"
	case EmptyResponse:
		return "EmptyResponse"
	case UnexpectedShape:
		return "UnexpectedShape"
	case NetworkError:
		return "NetworkError"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

func (k ErrorKind) Error() string {
	switch k {
	case TokenMissing:
		return "could not find anti-forgery token on the login page"
	case LoginRejected:
		return "incorrect username or password"
	case EmptyResponse:
		return "the portal returned an empty report"
	case UnexpectedShape:
		return "the portal did not return a report card"
	case NetworkError:
		return "the portal is unreachable"
	}
	return k.String()
}

func unwrapKind(kind ErrorKind, err error) []error {
	if err == nil {
		return []error{kind}
	}
	return []error{kind, err}
}

// AuthError is returned by Client.Authenticate.
type AuthError struct {
	Kind ErrorKind
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("massar: authenticate: %s", e.Kind.Error())
	}
	return fmt.Sprintf("massar: authenticate: %s: %s", e.Kind.Error(), e.Err.Error())
}

func (e *AuthError) Unwrap() []error {
	return unwrapKind(e.Kind, e.Err)
}

// FetchError is returned by Session.FetchReportHtml.
type FetchError struct {
	Kind ErrorKind
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("massar: fetch report: %s", e.Kind.Error())
	}
	return fmt.Sprintf("massar: fetch report: %s: %s", e.Kind.Error(), e.Err.Error())
}

func (e *FetchError) Unwrap() []error {
	return unwrapKind(e.Kind, e.Err)
}

// KindOf returns the ErrorKind carried by err, if any.
func KindOf(err error) (ErrorKind, bool) {
	var kind ErrorKind
	ok := errors.As(err, &kind)
	return kind, ok
}
