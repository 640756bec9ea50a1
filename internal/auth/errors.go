package auth

import "errors"

var (
	// ErrNotAuthenticated reports that no signed-in account is available.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrInteractionRequired reports that an operation needs an interactive
	// prompt and none is available in the current context.
	ErrInteractionRequired = errors.New("interactive sign-in required")
	// ErrSignInDeclined reports that the user declined or abandoned the
	// device-code prompt.
	ErrSignInDeclined = errors.New("sign-in declined")
	// ErrSignInExpired reports that the device code expired before the user
	// completed sign-in.
	ErrSignInExpired = errors.New("sign-in code expired")
)
