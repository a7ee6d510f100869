package testutil

// DefaultSession is the session used when a fixed generator is given none.
const DefaultSession = "test-session"

// FixedSession hands out the same session id on every call, so snapshots
// written by repeated runs hash to the same content address.
type FixedSession struct {
	session string
}

// NewFixedSession returns a generator for session, or DefaultSession if
// session is empty.
func NewFixedSession(session string) FixedSession {
	if session == "" {
		session = DefaultSession
	}
	return FixedSession{session: session}
}

// Generate returns the fixed session id.
func (g FixedSession) Generate() string {
	return g.session
}
