package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// Kind classifies a failed request. Every caller keys off this value, never
// off the endpoint that failed.
type Kind int

const (
	// NetworkUnreachable: no response arrived (refused, DNS, timeout).
	NetworkUnreachable Kind = iota + 1
	// Unauthorized: the server answered 401.
	Unauthorized
	// ServerError: any other non-2xx answer, or an unreadable 2xx body.
	ServerError
)

func (k Kind) String() string {
	switch k {
	case NetworkUnreachable:
		return "network_unreachable"
	case Unauthorized:
		return "unauthorized"
	case ServerError:
		return "server_error"
	}
	return "unknown"
}

// ErrTimeout matches (via errors.Is) any Error produced by an exceeded
// request timeout.
var ErrTimeout = errors.New("request timed out")

// Error is the classified failure returned by Client.Do.
type Error struct {
	Kind    Kind
	Status  int    // HTTP status, 0 when no response arrived
	Message string // user-facing text

	// FromServer is set when Message was taken from the response body.
	FromServer bool
	Timeout    bool
	Err        error // underlying cause, if any
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrTimeout) match timed-out requests.
func (e *Error) Is(target error) bool {
	return target == ErrTimeout && e.Timeout
}

// KindOf returns the classification of err, or 0 when err is not a
// transport failure.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return 0
}

// IsUnauthorized reports whether err is a 401 classification.
func IsUnauthorized(err error) bool {
	return KindOf(err) == Unauthorized
}

// MessageOf returns the user-facing message of a classified failure. The
// fallback is used for unclassified errors and for server errors that carried
// no message of their own.
func MessageOf(err error, fallback string) string {
	var te *Error
	if errors.As(err, &te) {
		if te.Kind == ServerError && !te.FromServer && fallback != "" {
			return fallback
		}
		return te.Message
	}
	if fallback == "" && err != nil {
		return err.Error()
	}
	return fallback
}

// UnreachableMessage tells the user to check the backend at baseURL.
func UnreachableMessage(baseURL string) string {
	return fmt.Sprintf("Network Error: Unable to connect to the backend server at %s. Please ensure the backend server is running.", baseURL)
}

func timeoutMessage(baseURL string, d time.Duration) string {
	return fmt.Sprintf("Network Error: No response from the backend server at %s within %s. Please ensure the backend server is running.", baseURL, d)
}

func genericServerMessage(status int) string {
	return fmt.Sprintf("server returned status %d", status)
}

// errorBody is the error shape the API returns: {"error": "..."} from the
// upload view, {"detail": "..."} from the framework defaults.
type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// serverMessage extracts the server-provided message from body, if any.
func serverMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var eb errorBody
	if err := sonic.Unmarshal(body, &eb); err != nil {
		return ""
	}
	if eb.Error != "" {
		return eb.Error
	}
	return eb.Detail
}
