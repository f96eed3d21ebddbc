package website

import (
	"fmt"
	"net/http"

	"github.com/PatchWorkCreations/iriseup-foundation/src/mediaerr"
)

func FourOhFour(c *RequestContext) ResponseData {
	res := c.ErrorResponse(http.StatusNotFound, NewSafeError(nil, "not found"))
	res.Errors = nil
	return res
}

// A SafeError can be used to wrap another error and explicitly provide
// an error message that is safe to show to a user. This allows the original
// error to easily be logged and for servers to consistently return errors
// in a standard format, without having to worry about leaking sensitive
// info (assuming you use the right middleware!).
type SafeError struct {
	Wrapped error
	Msg     string
}

func NewSafeError(err error, msg string, args ...interface{}) error {
	return &SafeError{
		Wrapped: err,
		Msg:     fmt.Sprintf(msg, args...),
	}
}

func (s *SafeError) Error() string {
	return s.Msg
}

func (s *SafeError) Unwrap() error {
	return s.Wrapped
}

/*
Turns a media error into a response. Client mistakes (bad input, undecodable
images, missing records) get their message echoed back; anything from the
backends is reported generically and logged in full.
*/
func mediaErrorResponse(c *RequestContext, err error) ResponseData {
	status, msg := http.StatusInternalServerError, "storage backend failed"
	switch mediaerr.KindOf(err) {
	case mediaerr.Validation:
		status, msg = http.StatusBadRequest, err.Error()
	case mediaerr.Decode:
		status, msg = http.StatusBadRequest, err.Error()
	case mediaerr.Compression:
		status, msg = http.StatusUnprocessableEntity, err.Error()
	case mediaerr.NotFound:
		status, msg = http.StatusNotFound, "not found"
	}

	res := c.ErrorResponse(status, NewSafeError(err, "%s", msg))
	if status < http.StatusInternalServerError {
		// Only server-side failures belong in the error log.
		res.Errors = nil
		c.Logger.Debug().Err(err).Int("status", status).Msg("rejected media request")
	}
	return res
}

