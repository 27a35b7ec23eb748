package embedding

import "errors"

var (
	// ErrRateLimited indicates the provider rejected the call due to
	// request volume. The call may succeed later.
	ErrRateLimited = errors.New("embedding provider rate limited")

	// ErrInvalidInput indicates the provider rejected the text itself,
	// for example over-length input. Retrying the same text cannot help.
	ErrInvalidInput = errors.New("embedding input rejected")

	// ErrUnavailable indicates a transport failure or provider-side
	// error unrelated to the input.
	ErrUnavailable = errors.New("embedding provider unavailable")

	// ErrUnknownProvider indicates a provider name with no registration.
	ErrUnknownProvider = errors.New("unknown embedding provider")

	// ErrNoDefaultProvider indicates the registry has no default set.
	ErrNoDefaultProvider = errors.New("no default embedding provider")
)
