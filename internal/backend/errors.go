package backend

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrInvalidSymbol      = errors.New("invalid symbol")
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not found")
)

// RemoteError is a request the backend answered with an error status.
type RemoteError struct {
	Status  int
	Message string // backend's own text, from "error" or "message"
	Kind    error  // one of the sentinel errors above, or nil
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("trade API error %d", e.Status)
	}
	return fmt.Sprintf("trade API error %d: %s", e.Status, e.Message)
}

func (e *RemoteError) Unwrap() error { return e.Kind }

// classify maps a backend error message to a sentinel. The backend reports
// rejections only as free text.
func classify(status int, msg string) error {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "insufficient funds"):
		return ErrInsufficientFunds
	case strings.Contains(m, "insufficient stocks"), strings.Contains(m, "insufficient shares"):
		return ErrInsufficientShares
	case strings.Contains(m, "quantity"):
		return ErrInvalidQuantity
	case strings.Contains(m, "symbol"):
		return ErrInvalidSymbol
	case status == 401 || status == 422:
		return ErrUnauthorized
	case status == 404:
		return ErrNotFound
	}
	return nil
}
