// Package core holds the server's shared state: the registry of live
// connections and rooms, and the broadcast fan-out over room membership.
//
// One mutex guards everything. Methods acquire and release it internally,
// keeping each critical section a pure in-memory mutation or lookup; no
// method performs network I/O while holding it. Broadcast snapshots the
// member list under the lock and sends after releasing it, so one stalled
// peer can never block registry operations for everyone else.
package core

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Registry is the process-wide table of connections and rooms. Construct
// one per server; tests may hold several independent instances.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*Conn
	rooms map[string]*Room

	roomCapacity int
	log          zerolog.Logger
}

// NewRegistry builds an empty registry. roomCapacity bounds members per
// room; zero means unbounded.
func NewRegistry(roomCapacity int, logger *zerolog.Logger) *Registry {
	lg := zerolog.Nop()
	if logger != nil {
		lg = *logger
	}
	return &Registry{
		conns:        make(map[string]*Conn),
		rooms:        make(map[string]*Room),
		roomCapacity: roomCapacity,
		log:          lg,
	}
}

// Add tracks a freshly accepted, not yet authenticated connection.
func (g *Registry) Add(c *Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.conns[c.ID] = c
}

// Authenticate claims username for c. The scan over connections is O(n),
// which is fine at the intended scale. Fails with ErrNameTaken if another
// authenticated connection already holds the name, ignoring case.
func (g *Registry) Authenticate(c *Conn, username string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, other := range g.conns {
		if other != c && other.authed && strings.EqualFold(other.Username, username) {
			return ErrNameTaken
		}
	}
	c.Username = username
	c.authed = true
	return nil
}

// FindByUsername returns the authenticated connection holding username,
// ignoring case.
func (g *Registry) FindByUsername(username string) (*Conn, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, c := range g.conns {
		if c.authed && strings.EqualFold(c.Username, username) {
			return c, nil
		}
	}
	return nil, ErrUserNotFound
}

// Join adds c to the room, creating it on first join. Joining a room the
// connection is already in is a no-op success.
func (g *Registry) Join(c *Conn, name string) (*Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := strings.ToLower(name)
	room, ok := g.rooms[key]
	if !ok {
		room = newRoom(name, g.roomCapacity)
		g.rooms[key] = room
	}
	if err := room.add(c); err != nil {
		g.log.Warn().Str("room", room.Name).Str("user", c.Username).Msg("room at capacity")
		return nil, err
	}
	return room, nil
}

// Leave removes c from the room if both exist. The returned room is nil
// when no room with that name exists; removed reports whether c was
// actually a member. Empty rooms stay in the table; they are not garbage
// collected.
func (g *Registry) Leave(c *Conn, name string) (room *Room, removed bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	room, ok := g.rooms[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return room, room.remove(c)
}

// RoomIfMember resolves the room and checks that c is a member, as one
// atomic lookup.
func (g *Registry) RoomIfMember(c *Conn, name string) (*Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	room, ok := g.rooms[strings.ToLower(name)]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if !room.has(c) {
		return nil, ErrNotInRoom
	}
	return room, nil
}

// Remove drops c from the connection table and from every room, returning
// the rooms it was actually a member of so the caller can emit one leave
// notification per room.
func (g *Registry) Remove(c *Conn) []*Room {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.conns, c.ID)

	var left []*Room
	for _, room := range g.rooms {
		if room.remove(c) {
			left = append(left, room)
		}
	}
	return left
}

// Broadcast sends payload to every current member of room and reports how
// many sends succeeded. Membership is snapshotted under the lock; the sends
// happen outside it, so a member joining or leaving concurrently may or may
// not see this particular payload. A failed send is skipped, not retried;
// the member's own receive loop will observe the broken socket and tear
// down.
func (g *Registry) Broadcast(room *Room, payload []byte) int {
	g.mu.Lock()
	members := room.snapshot()
	g.mu.Unlock()

	delivered := 0
	for _, m := range members {
		if err := m.Send(payload); err != nil {
			g.log.Debug().Err(err).Str("room", room.Name).Str("user", m.Username).Msg("broadcast send failed")
			continue
		}
		delivered++
	}
	return delivered
}

// MemberCount reports the member count of the named room, or zero if it
// does not exist.
func (g *Registry) MemberCount(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	room, ok := g.rooms[strings.ToLower(name)]
	if !ok {
		return 0
	}
	return len(room.members)
}

// Counts reports the number of tracked connections and rooms.
func (g *Registry) Counts() (conns, rooms int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns), len(g.rooms)
}
