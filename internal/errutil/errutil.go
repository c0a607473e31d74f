// Package errutil logs errors with their structured context.
package errutil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rs/zerolog"
)

// Event attaches err and any goerr values to a log event.
func Event(e *zerolog.Event, err error) *zerolog.Event {
	e = e.Err(err)
	var ge *goerr.Error
	if errors.As(err, &ge) {
		if values := ge.Values(); len(values) > 0 {
			e = e.Fields(map[string]any{"values": values})
		}
	}
	return e
}

// Handle logs the error with a message at error level and returns it.
func Handle(ctx context.Context, err error, msg string) error {
	if err == nil {
		return nil
	}
	Event(zerolog.Ctx(ctx).Error(), err).Msg(msg)
	return err
}

// HandleHTTP logs the error and writes a JSON error body. 5xx responses
// hide the error text from the client.
func HandleHTTP(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	if err == nil {
		return
	}

	logger := zerolog.Ctx(r.Context())
	ev := logger.Warn()
	if statusCode >= 500 {
		ev = logger.Error()
	}
	Event(ev, err).Int("status", statusCode).Msg("HTTP error")

	msg := err.Error()
	if statusCode >= 500 {
		msg = http.StatusText(statusCode)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
