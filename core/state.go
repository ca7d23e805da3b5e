package core

// LoginState is the login progress of one account.
type LoginState int

const (
	// LoggedOut is the initial and terminal state.
	LoggedOut LoginState = iota
	// LoggingIn is set synchronously when a login request is issued.
	LoggingIn
	// LoggedIn is set when the engine confirms the login.
	LoggedIn
	// LoggingOut is set synchronously when a logout request is issued.
	LoggingOut
)

// String returns the state name.
func (s LoginState) String() string {
	switch s {
	case LoggedOut:
		return "LoggedOut"
	case LoggingIn:
		return "LoggingIn"
	case LoggedIn:
		return "LoggedIn"
	case LoggingOut:
		return "LoggingOut"
	default:
		return "Unknown"
	}
}

// ConnectionState is the state of one transport (audio or text) of a channel session.
type ConnectionState int

const (
	// Disconnected is the initial and terminal state.
	Disconnected ConnectionState = iota
	// Connecting is set speculatively when a connect request is issued.
	Connecting
	// Connected is set by the engine.
	Connected
	// Disconnecting is set when a disconnect request is issued.
	Disconnecting
)

// String returns the state name.
func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Disconnecting:
		return "Disconnecting"
	default:
		return "Unknown"
	}
}

// CanTransition reports whether s may move to next. The forward cycle is
// Disconnected→Connecting→Connected→Disconnecting→Disconnected; any state may
// fall back to Disconnected on failure and a pending connect may be abandoned.
func (s ConnectionState) CanTransition(next ConnectionState) bool {
	if s == next || next == Disconnected {
		return true
	}
	switch s {
	case Disconnected:
		return next == Connecting
	case Connecting:
		return next == Connected || next == Disconnecting
	case Connected:
		return next == Disconnecting
	default:
		return false
	}
}

// AlreadyDone reports whether a request to move a transport to want
// (connected=true / disconnected=false) is redundant given state.
// {Connecting, Connected} count as connected, {Disconnected, Disconnecting}
// as disconnected.
func AlreadyDone(want bool, state ConnectionState) bool {
	if want {
		return state == Connecting || state == Connected
	}
	return state == Disconnected || state == Disconnecting
}

// ChannelState aggregates the audio and text transports of a channel session.
func ChannelState(audio, text ConnectionState) ConnectionState {
	switch {
	case audio == Connected || text == Connected:
		return Connected
	case audio == Connecting || text == Connecting:
		return Connecting
	case audio == Disconnecting || text == Disconnecting:
		return Disconnecting
	default:
		return Disconnected
	}
}

// PresenceStatus is the availability an account advertises.
type PresenceStatus int

const (
	PresenceUnavailable PresenceStatus = iota
	PresenceAvailable
	PresenceChat
	PresenceDoNotDisturb
	PresenceAway
	PresenceExtendedAway
)

// String returns the status name.
func (p PresenceStatus) String() string {
	switch p {
	case PresenceAvailable:
		return "Available"
	case PresenceChat:
		return "Chat"
	case PresenceDoNotDisturb:
		return "DoNotDisturb"
	case PresenceAway:
		return "Away"
	case PresenceExtendedAway:
		return "ExtendedAway"
	default:
		return "Unavailable"
	}
}

// DeviceDirection distinguishes capture from render devices.
type DeviceDirection int

const (
	// DeviceInput is a capture device (microphone).
	DeviceInput DeviceDirection = iota
	// DeviceOutput is a render device (speaker, headset).
	DeviceOutput
)

// String returns the direction name.
func (d DeviceDirection) String() string {
	if d == DeviceOutput {
		return "output"
	}
	return "input"
}
