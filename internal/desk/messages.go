package desk

import (
	"context"
	"errors"
	"fmt"

	"github.com/gw/tradedesk/internal/backend"
)

// UserMessage renders err as a sentence for the person at the desk, e.g.
// "Failed to buy stock: Insufficient funds to buy stock."
func UserMessage(action string, err error) string {
	return fmt.Sprintf("Failed to %s: %s", action, detail(err))
}

func detail(err error) string {
	var re *backend.RemoteError
	switch {
	case errors.As(err, &re) && re.Message != "":
		return re.Message
	case errors.Is(err, backend.ErrInvalidQuantity):
		return "Quantity must be greater than zero."
	case errors.Is(err, backend.ErrInvalidSymbol):
		return "Symbol is required."
	case errors.Is(err, backend.ErrUnauthorized):
		return "Session expired, please log in again."
	case errors.Is(err, context.DeadlineExceeded):
		return "The trading service did not respond."
	}
	return err.Error()
}
