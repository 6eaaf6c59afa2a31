package haier

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected   = errors.New("haier: push channel not connected")
	ErrEmptyToken     = errors.New("haier: empty access token")
	ErrIgnoredFrame   = errors.New("haier: frame ignored")
	ErrMalformedFrame = errors.New("haier: malformed frame")
)

const RET_CODE_SUCCESS = "00000"

// ClientError is returned for any non-success answer from the cloud API.
type ClientError struct {
	Code    string
	Message string
	// Auth is set when the failure means the access token is no longer accepted.
	Auth bool
}

func (e *ClientError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("haier: api error: %s", e.Message)
	}
	return fmt.Sprintf("haier: api error %s: %s", e.Code, e.Message)
}

// IsAuthError reports whether err means the token must be refreshed.
func IsAuthError(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Auth
	}
	return false
}
