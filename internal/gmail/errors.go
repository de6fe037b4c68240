package gmail

import (
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"
)

// IsRateLimited reports whether err is a Gmail quota rejection: HTTP 429, or
// a 403 carrying one of the rate limit reasons.
func IsRateLimited(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		for _, item := range apiErr.Errors {
			if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
				return true
			}
		}
	}
	return false
}
