package earthengine

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/nao1215/forestloss/internal/loss"
	"google.golang.org/api/googleapi"
)

// ErrNoProject is returned when no Google Cloud project is configured.
var ErrNoProject = errors.New("no Google Cloud project configured")

// classify maps a client error onto the loss error taxonomy.
//
// Authentication, quota and server-side failures make the service unusable
// for this run and are reported as ErrServiceUnavailable. Other API errors
// (bad asset id, invalid argument, computation timed out on the server with
// a 400) are ErrComputationFailed. Errors without an HTTP status are
// transport failures or context expiry and make the service unavailable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusUnauthorized,
			gerr.Code == http.StatusForbidden,
			gerr.Code == http.StatusTooManyRequests,
			gerr.Code >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %s: %w", loss.ErrServiceUnavailable, op, err)
		default:
			return fmt.Errorf("%w: %s: %w", loss.ErrComputationFailed, op, err)
		}
	}
	return fmt.Errorf("%w: %s: %w", loss.ErrServiceUnavailable, op, err)
}
