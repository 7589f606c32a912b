package reddit

import "fmt"

// AuthError means the identity provider rejected our credential even
// after a forced refresh, or a 403 that is a genuine permission denial.
// It is fatal for the run.
type AuthError struct {
	Status int
	Msg    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth failed (status %d): %s", e.Status, e.Msg)
}

// FetchError means a single HTTP call exhausted its retry budget. It is
// recoverable at the call-site: skip the item or page, log, continue.
type FetchError struct {
	URL      string
	Status   int
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts (last status %d): %v",
		e.URL, e.Attempts, e.Status, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
