package rest

import "fmt"

// formatError builds the one error template every classified failure uses.
// The credential is never part of it.
func formatError(action, url string, status int, detail string) string {
	statusText := "unknown"
	if status > 0 {
		statusText = fmt.Sprintf("%d", status)
	}
	return fmt.Sprintf("%s failed (status=%s) %s | url=%s", action, statusText, detail, url)
}

// AuthError reports a 401 from the upstream service: the credential itself
// was rejected. It is never retried, since retrying cannot fix an invalid
// key; the user needs to re-register.
type AuthError struct {
	Action  string
	URL     string
	Service string
}

func (e *AuthError) Error() string {
	return formatError(e.Action, e.URL, 401, "invalid API key or unauthorized access")
}

// RequestError reports any other non-2xx response, including a transient
// status that survived every retry (Status then carries the last observed
// status).
type RequestError struct {
	Action  string
	URL     string
	Service string
	Status  int
	Detail  string
}

func (e *RequestError) Error() string {
	return formatError(e.Action, e.URL, e.Status, e.Detail)
}

// NetworkError reports a transport-level failure (DNS, connect, timeout)
// where no HTTP status was observed.
type NetworkError struct {
	Action  string
	URL     string
	Service string
	Err     error
}

func (e *NetworkError) Error() string {
	return formatError(e.Action, e.URL, 0, e.Err.Error())
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
