package google

import (
	"context"
	"errors"
	"net"
	"net/http"

	"google.golang.org/api/googleapi"

	"fintrack/internal/core"
)

// classify maps a Sheets API failure onto the ledger error taxonomy. When
// mayHaveApplied is set, failures that happen after the request could have
// reached the server are marked ambiguous.
func classify(op string, err error, mayHaveApplied bool) error {
	se := &core.StoreError{Op: op, Kind: core.ErrUnavailable, Err: err}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden:
			se.Kind = core.ErrAuthFailure
		case gerr.Code == http.StatusTooManyRequests:
			se.Kind = core.ErrRateLimited
		case gerr.Code >= 500:
			se.Ambiguous = mayHaveApplied
		}
		return se
	}

	switch {
	case errors.Is(err, context.Canceled):
		// Cancellation before the response; the write may still land.
		se.Ambiguous = mayHaveApplied
	case errors.Is(err, context.DeadlineExceeded):
		se.Ambiguous = mayHaveApplied
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			se.Ambiguous = mayHaveApplied
		}
	}
	return se
}
