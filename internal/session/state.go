package session

// State is the orchestrator's position in the identity lifecycle.
type State int

const (
	Unauthenticated State = iota
	Authenticating
	Authenticated
	// CreationFailed and ImportFailed are passed through on failure before
	// the manager settles back in Unauthenticated.
	CreationFailed
	ImportFailed
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case CreationFailed:
		return "creation_failed"
	case ImportFailed:
		return "import_failed"
	default:
		return "unknown"
	}
}

// Mode records how a session's secret was unlocked.
type Mode int

const (
	// ModeBiometric: the password came out of the biometric-sealed credential.
	ModeBiometric Mode = iota
	// ModePassword: the user typed the password to unlock an existing identity.
	ModePassword
	// ModePasswordFallback: biometric confirmation was unavailable or did not
	// complete and the identity was established on the entered password alone.
	// This is the reduced-security mode.
	ModePasswordFallback
)

func (m Mode) String() string {
	switch m {
	case ModeBiometric:
		return "biometric"
	case ModePassword:
		return "password"
	case ModePasswordFallback:
		return "password_fallback"
	default:
		return "unknown"
	}
}
