package core

// AuthState is the externally observable session state. StateUnknown is
// reachable only once, at construction; StateLoading is always transient;
// StateUnauthenticated is a valid return-to state, not terminal.
type AuthState int

const (
	StateUnknown AuthState = iota
	StateLoading
	StateAuthenticated
	StateUnauthenticated
)

func (s AuthState) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "invalid"
	}
}
