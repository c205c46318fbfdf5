package core

// Room is a named broadcast group. Name keeps the casing of the first join;
// lookups are case-insensitive via the registry's key. All mutation happens
// under the owning registry's lock.
type Room struct {
	Name string

	members  []*Conn
	capacity int
}

func newRoom(name string, capacity int) *Room {
	return &Room{Name: name, capacity: capacity}
}

func (r *Room) has(c *Conn) bool {
	for _, m := range r.members {
		if m == c {
			return true
		}
	}
	return false
}

// add inserts c unless it is already a member. Idempotent.
func (r *Room) add(c *Conn) error {
	if r.has(c) {
		return nil
	}
	if r.capacity > 0 && len(r.members) >= r.capacity {
		return ErrRoomFull
	}
	r.members = append(r.members, c)
	return nil
}

// remove deletes c by identity, swapping with the last entry. Member order
// carries no meaning.
func (r *Room) remove(c *Conn) bool {
	for i, m := range r.members {
		if m == c {
			last := len(r.members) - 1
			r.members[i] = r.members[last]
			r.members[last] = nil
			r.members = r.members[:last]
			return true
		}
	}
	return false
}

// snapshot copies the current member list for fan-out outside the lock.
func (r *Room) snapshot() []*Conn {
	out := make([]*Conn, len(r.members))
	copy(out, r.members)
	return out
}
