package core

// Sender delivers one framed payload to a peer. Implementations must be
// safe for concurrent use: broadcast fan-out calls Send from other
// connections' goroutines, always outside the registry lock.
type Sender interface {
	SendPayload(payload []byte) error
}

// Conn is one accepted session as the registry sees it. Username and the
// authenticated flag are written exactly once, by Registry.Authenticate,
// under the registry lock.
type Conn struct {
	ID       string
	Username string

	authed bool
	sender Sender
}

// NewConn wraps a session-owned sender for registration.
func NewConn(id string, sender Sender) *Conn {
	return &Conn{ID: id, sender: sender}
}

// Send delivers a payload over the connection's own socket. Never call it
// while holding the registry lock.
func (c *Conn) Send(payload []byte) error {
	return c.sender.SendPayload(payload)
}
