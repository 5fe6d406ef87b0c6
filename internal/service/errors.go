package service

import "errors"

// Caller-facing failures. Wrap with fmt.Errorf("%w: ...") to add detail and
// match with errors.Is.
var (
	ErrUnauthenticated            = errors.New("no credential supplied")
	ErrUserNotFound               = errors.New("user not found")
	ErrInvalidAuthToken           = errors.New("invalid auth token")
	ErrRoomNotFound               = errors.New("room not found")
	ErrMembershipNotFound         = errors.New("membership not found")
	ErrAlreadyPlaying             = errors.New("room is already playing")
	ErrRoomFull                   = errors.New("room is full")
	ErrAlreadyInRoom              = errors.New("identity already belongs to a room")
	ErrHostResolutionInconsistent = errors.New("next host could not be resolved")
	ErrInvalidRequest             = errors.New("invalid request")
	ErrNotHost                    = errors.New("only the host may do this")
	ErrAuthenticationFailed       = errors.New("authentication failed")
	ErrRegistrationFailed         = errors.New("registration failed: email already registered")
	ErrInternalServer             = errors.New("internal server error")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrUnauthenticated, "UNAUTHENTICATED"},
	{ErrUserNotFound, "USER_NOT_FOUND"},
	{ErrInvalidAuthToken, "INVALID_AUTH_TOKEN"},
	{ErrRoomNotFound, "ROOM_NOT_FOUND"},
	{ErrMembershipNotFound, "MEMBERSHIP_NOT_FOUND"},
	{ErrAlreadyPlaying, "ALREADY_PLAYING"},
	{ErrRoomFull, "ROOM_FULL"},
	{ErrAlreadyInRoom, "ALREADY_IN_ROOM"},
	{ErrHostResolutionInconsistent, "HOST_RESOLUTION_INCONSISTENT"},
	{ErrInvalidRequest, "INVALID_REQUEST"},
	{ErrNotHost, "NOT_HOST"},
	{ErrAuthenticationFailed, "AUTHENTICATION_FAILED"},
	{ErrRegistrationFailed, "REGISTRATION_FAILED"},
}

// Code returns a stable machine-readable code for err.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "INTERNAL"
}
