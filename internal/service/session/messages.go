package session

import (
	"errors"
	"net/http"

	"github.com/zhouzirui/webverse/backend/internal/model/story"
	"github.com/zhouzirui/webverse/backend/internal/service/dispatch"
)

// FailureMessage turns a request error into short text for the reader.
func FailureMessage(err error) string {
	var netErr *dispatch.NetworkError
	var decodeErr *story.DecodeError

	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		return "The story took too long to arrive. Try again."
	case errors.As(err, &netErr) && netErr.StatusCode >= http.StatusInternalServerError:
		return "The story engine is having trouble right now. Try again."
	case errors.As(err, &netErr) && netErr.StatusCode != 0:
		return "The story engine rejected the request. Try again."
	case errors.As(err, &netErr):
		return "Could not reach the story server. Check your connection and try again."
	case errors.As(err, &decodeErr):
		return "The story came back garbled. Try again."
	default:
		return "Failed to load the story. Try again."
	}
}
