package core

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

// recordingSender collects payloads; failing simulates a broken peer socket.
type recordingSender struct {
	mu       sync.Mutex
	payloads [][]byte
	failing  bool
}

func (s *recordingSender) SendPayload(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("peer gone")
	}
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

func newTestConn(id string) (*Conn, *recordingSender) {
	s := &recordingSender{}
	return NewConn(id, s), s
}

func TestAuthenticateRejectsDuplicateIgnoringCase(t *testing.T) {
	reg := NewRegistry(0, nil)

	a, _ := newTestConn("a")
	b, _ := newTestConn("b")
	reg.Add(a)
	reg.Add(b)

	if err := reg.Authenticate(a, "Alice"); err != nil {
		t.Fatalf("first auth: %v", err)
	}
	if err := reg.Authenticate(b, "alice"); !errors.Is(err, ErrNameTaken) {
		t.Fatalf("expected ErrNameTaken, got %v", err)
	}

	// The name frees up once the holder is removed.
	reg.Remove(a)
	if err := reg.Authenticate(b, "alice"); err != nil {
		t.Fatalf("auth after removal: %v", err)
	}
}

func TestFindByUsernameSkipsUnauthenticated(t *testing.T) {
	reg := NewRegistry(0, nil)

	a, _ := newTestConn("a")
	reg.Add(a)

	if _, err := reg.FindByUsername("alice"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	if err := reg.Authenticate(a, "alice"); err != nil {
		t.Fatalf("auth: %v", err)
	}
	got, err := reg.FindByUsername("ALICE")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got != a {
		t.Fatalf("found wrong connection")
	}
}

func TestJoinIsIdempotentAndCaseInsensitive(t *testing.T) {
	reg := NewRegistry(0, nil)
	a, _ := newTestConn("a")
	reg.Add(a)

	r1, err := reg.Join(a, "Lobby")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	r2, err := reg.Join(a, "LOBBY")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if r1 != r2 {
		t.Fatalf("case variants created separate rooms")
	}
	if r1.Name != "Lobby" {
		t.Fatalf("room name should keep first-join casing, got %q", r1.Name)
	}
	if n := reg.MemberCount("lobby"); n != 1 {
		t.Fatalf("expected 1 member after double join, got %d", n)
	}
}

func TestJoinRespectsCapacity(t *testing.T) {
	reg := NewRegistry(2, nil)

	for i := 0; i < 2; i++ {
		c, _ := newTestConn(fmt.Sprintf("c%d", i))
		reg.Add(c)
		if _, err := reg.Join(c, "small"); err != nil {
			t.Fatalf("join %d: %v", i, err)
		}
	}

	extra, _ := newTestConn("extra")
	reg.Add(extra)
	if _, err := reg.Join(extra, "small"); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("expected ErrRoomFull, got %v", err)
	}
}

func TestLeaveAndEmptyRoomsPersist(t *testing.T) {
	reg := NewRegistry(0, nil)
	a, _ := newTestConn("a")
	reg.Add(a)

	if _, err := reg.Join(a, "lobby"); err != nil {
		t.Fatalf("join: %v", err)
	}

	room, removed := reg.Leave(a, "lobby")
	if room == nil || !removed {
		t.Fatalf("expected removal from existing room, got room=%v removed=%v", room, removed)
	}

	// Leaving again: room still exists, but no membership to drop.
	room, removed = reg.Leave(a, "lobby")
	if room == nil || removed {
		t.Fatalf("expected existing room and no removal, got room=%v removed=%v", room, removed)
	}

	// Unknown room.
	if room, removed := reg.Leave(a, "ghost"); room != nil || removed {
		t.Fatalf("expected no room, got room=%v removed=%v", room, removed)
	}

	// Empty rooms stay in the table.
	if _, rooms := reg.Counts(); rooms != 1 {
		t.Fatalf("expected empty room to persist, got %d rooms", rooms)
	}
}

func TestRoomIfMember(t *testing.T) {
	reg := NewRegistry(0, nil)
	a, _ := newTestConn("a")
	b, _ := newTestConn("b")
	reg.Add(a)
	reg.Add(b)

	if _, err := reg.RoomIfMember(a, "lobby"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}

	if _, err := reg.Join(b, "lobby"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := reg.RoomIfMember(a, "lobby"); !errors.Is(err, ErrNotInRoom) {
		t.Fatalf("expected ErrNotInRoom, got %v", err)
	}

	if _, err := reg.Join(a, "lobby"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := reg.RoomIfMember(a, "lobby"); err != nil {
		t.Fatalf("expected membership, got %v", err)
	}
}

func TestRemoveReturnsRoomsLeft(t *testing.T) {
	reg := NewRegistry(0, nil)
	a, _ := newTestConn("a")
	reg.Add(a)

	for _, name := range []string{"one", "two"} {
		if _, err := reg.Join(a, name); err != nil {
			t.Fatalf("join %s: %v", name, err)
		}
	}

	left := reg.Remove(a)
	if len(left) != 2 {
		t.Fatalf("expected removal from 2 rooms, got %d", len(left))
	}
	if conns, _ := reg.Counts(); conns != 0 {
		t.Fatalf("expected no tracked connections, got %d", conns)
	}

	// Second removal finds nothing.
	if left := reg.Remove(a); len(left) != 0 {
		t.Fatalf("expected no rooms on repeat removal, got %d", len(left))
	}
}

func TestBroadcastDeliversToSnapshotAndSkipsFailures(t *testing.T) {
	reg := NewRegistry(0, nil)

	conns := make([]*Conn, 0, 3)
	senders := make([]*recordingSender, 0, 3)
	for i := 0; i < 3; i++ {
		c, s := newTestConn(fmt.Sprintf("c%d", i))
		reg.Add(c)
		if _, err := reg.Join(c, "lobby"); err != nil {
			t.Fatalf("join %d: %v", i, err)
		}
		conns = append(conns, c)
		senders = append(senders, s)
	}

	room, err := reg.RoomIfMember(conns[0], "lobby")
	if err != nil {
		t.Fatalf("room lookup: %v", err)
	}

	senders[1].failing = true
	delivered := reg.Broadcast(room, []byte("ROOMMSG lobby a :hi"))
	if delivered != 2 {
		t.Fatalf("expected 2 deliveries, got %d", delivered)
	}
	if senders[0].count() != 1 || senders[2].count() != 1 {
		t.Fatalf("healthy members should get exactly one payload")
	}
	if senders[1].count() != 0 {
		t.Fatalf("failed member should get nothing")
	}
}

func TestConcurrentJoinsCreateOneRoom(t *testing.T) {
	reg := NewRegistry(0, nil)
	const n = 32

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		c, _ := newTestConn(fmt.Sprintf("c%d", i))
		reg.Add(c)
		wg.Add(1)
		go func(c *Conn) {
			defer wg.Done()
			_, err := reg.Join(c, "fresh")
			errs <- err
		}(c)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent join: %v", err)
		}
	}
	if _, rooms := reg.Counts(); rooms != 1 {
		t.Fatalf("expected exactly one room, got %d", rooms)
	}
	if got := reg.MemberCount("fresh"); got != n {
		t.Fatalf("expected %d members, got %d", n, got)
	}
}
