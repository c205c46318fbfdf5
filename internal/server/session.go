package server

import (
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/framechat/internal/auth"
	"github.com/vovakirdan/framechat/internal/core"
	"github.com/vovakirdan/framechat/internal/frame"
	"github.com/vovakirdan/framechat/internal/metrics"
	"github.com/vovakirdan/framechat/internal/proto"
	"github.com/vovakirdan/framechat/internal/ratelimit"
)

// session drives one socket through the connection state machine:
// greeting, awaiting auth, authenticated dispatch, closed. It owns the
// socket; the registry only ever sees it through the core.Sender interface.
type session struct {
	conn     net.Conn
	c        *core.Conn
	registry *core.Registry
	verifier *auth.Verifier
	limiter  *ratelimit.Bucket
	metrics  *metrics.Metrics
	log      zerolog.Logger
	maxFrame uint32

	// writeMu serializes frames on the socket: broadcasts arrive from
	// other connections' goroutines.
	writeMu sync.Mutex
	authed  bool
}

func (s *Server) newSession(conn net.Conn) *session {
	id := uuid.New().String()
	logger := s.log.With().
		Str("session", id).
		Str("remote", conn.RemoteAddr().String()).
		Logger()

	sess := &session{
		conn:     conn,
		registry: s.registry,
		verifier: s.verifier,
		limiter:  ratelimit.New(s.cfg.CommandRate, s.cfg.CommandBurst),
		metrics:  s.metrics,
		log:      logger,
		maxFrame: s.cfg.MaxFrame,
	}
	sess.c = core.NewConn(id, sess)
	s.registry.Add(sess.c)
	return sess
}

// SendPayload implements core.Sender. Safe for concurrent use.
func (s *session) SendPayload(payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := frame.Send(s.conn, payload); err != nil {
		return err
	}
	s.metrics.FramesOut.Inc()
	return nil
}

func (s *session) run() {
	defer s.teardown()

	s.log.Debug().Msg("connection accepted")
	if err := s.SendPayload([]byte(proto.Greeting)); err != nil {
		return
	}

	for {
		payload, err := frame.Receive(s.conn, s.maxFrame)
		if err != nil {
			// Transport errors are fatal to the connection,
			// including an oversized length announcement.
			s.log.Debug().Err(err).Msg("receive failed")
			return
		}
		s.metrics.FramesIn.Inc()

		cmd, err := proto.Parse(string(payload))
		if err != nil {
			s.replyErr(proto.ErrCodeBad, "malformed command")
			continue
		}

		if !s.authed {
			if !s.handleAuth(cmd) {
				return
			}
			continue
		}

		if !s.limiter.Allow() {
			s.metrics.RateLimited.Inc()
			s.replyErr(proto.ErrCodeLimit, "slow down")
			continue
		}

		s.dispatch(cmd)
	}
}

func (s *session) dispatch(cmd proto.Command) {
	switch {
	case cmd.Is(proto.CmdJoin):
		s.countCommand(proto.CmdJoin)
		s.handleJoin(cmd)
	case cmd.Is(proto.CmdLeave):
		s.countCommand(proto.CmdLeave)
		s.handleLeave(cmd)
	case cmd.Is(proto.CmdMsg):
		s.countCommand(proto.CmdMsg)
		s.handleMsg(cmd)
	case cmd.Is(proto.CmdPM):
		s.countCommand(proto.CmdPM)
		s.handlePM(cmd)
	case cmd.Is(proto.CmdPing):
		s.countCommand(proto.CmdPing)
		s.reply(proto.ReplyPong, "", "", "")
	default:
		s.countCommand("UNKNOWN")
		s.replyErr(proto.ErrCodeUnknown, "unknown command")
	}
}

// handleAuth processes one frame in the AwaitingAuth state. It returns
// false when the connection must close: a wrong password or a taken
// username. Everything else leaves the client free to retry.
func (s *session) handleAuth(cmd proto.Command) (stay bool) {
	if !cmd.Is(proto.CmdAuth) || cmd.Arg1 == "" || cmd.Arg2 == "" {
		s.replyErr(proto.ErrCodeAuth, "expected AUTH username password")
		return true
	}

	username := cmd.Arg1
	if err := s.verifier.ValidateName(username); err != nil {
		s.metrics.AuthAttempts.WithLabelValues("failed").Inc()
		s.replyErr(proto.ErrCodeAuth, "username too long")
		return true
	}
	if !s.verifier.VerifySecret(cmd.Arg2) {
		s.metrics.AuthAttempts.WithLabelValues("failed").Inc()
		s.replyErr(proto.ErrCodeAuth, "bad password")
		return false
	}
	if err := s.registry.Authenticate(s.c, username); err != nil {
		s.metrics.AuthAttempts.WithLabelValues("failed").Inc()
		s.replyErr(proto.ErrCodeAuth, "username already in use")
		return false
	}

	s.authed = true
	s.log = s.log.With().Str("user", username).Logger()
	s.metrics.AuthAttempts.WithLabelValues("ok").Inc()
	s.log.Info().Msg("authenticated")
	s.replyOK(proto.CmdAuth)
	return true
}

func (s *session) handleJoin(cmd proto.Command) {
	if cmd.Arg1 == "" {
		s.replyErr(proto.ErrCodeJoin, "missing room")
		return
	}
	if err := s.verifier.ValidateName(cmd.Arg1); err != nil {
		s.replyErr(proto.ErrCodeJoin, "room name too long")
		return
	}

	room, err := s.registry.Join(s.c, cmd.Arg1)
	if err != nil {
		s.replyErr(proto.ErrCodeJoin, "room is full")
		return
	}

	s.replyOK(proto.CmdJoin)
	s.log.Info().Str("room", room.Name).Msg("joined room")
	s.broadcast(room, proto.EventUserJoin, room.Name, s.c.Username, "")
}

func (s *session) handleLeave(cmd proto.Command) {
	if cmd.Arg1 == "" {
		s.replyErr(proto.ErrCodeLeave, "missing room")
		return
	}

	room, removed := s.registry.Leave(s.c, cmd.Arg1)
	s.replyOK(proto.CmdLeave)
	if room == nil {
		return
	}
	if removed {
		s.log.Info().Str("room", room.Name).Msg("left room")
	}
	s.broadcast(room, proto.EventUserLeave, room.Name, s.c.Username, "")
}

func (s *session) handleMsg(cmd proto.Command) {
	if cmd.Arg1 == "" || cmd.Text == "" {
		s.replyErr(proto.ErrCodeMsg, "expected MSG room :text")
		return
	}

	room, err := s.registry.RoomIfMember(s.c, cmd.Arg1)
	if err != nil {
		s.replyErr(proto.ErrCodeMsg, "not in room")
		return
	}

	line, err := proto.Format(proto.EventRoomMsg, room.Name, s.c.Username, cmd.Text)
	if err != nil || len(line) > int(s.maxFrame) {
		s.replyErr(proto.ErrCodeMsg, "message too long")
		return
	}
	// The sender is a member, so it receives its own ROOMMSG echo.
	s.fanout(room, line)
}

func (s *session) handlePM(cmd proto.Command) {
	if cmd.Arg1 == "" || cmd.Text == "" {
		s.replyErr(proto.ErrCodePM, "expected PM user :text")
		return
	}

	target, err := s.registry.FindByUsername(cmd.Arg1)
	if err != nil {
		s.replyErr(proto.ErrCodePM, "user not found")
		return
	}

	line, err := proto.Format(proto.EventPrivMsg, s.c.Username, "", cmd.Text)
	if err != nil || len(line) > int(s.maxFrame) {
		s.replyErr(proto.ErrCodePM, "message too long")
		return
	}
	// Delivery failure is the target's problem; its receive loop tears
	// down on the broken socket.
	_ = target.Send([]byte(line))
	s.replyOK(proto.CmdPM)
}

// broadcast formats a presence event and fans it out to the room. Event
// lines are bounded by the name limits, so formatting cannot overflow.
func (s *session) broadcast(room *core.Room, name, arg1, arg2, text string) {
	line, err := proto.Format(name, arg1, arg2, text)
	if err != nil {
		return
	}
	s.fanout(room, line)
}

func (s *session) fanout(room *core.Room, line string) {
	n := s.registry.Broadcast(room, []byte(line))
	s.metrics.BroadcastFanout.Observe(float64(n))
}

// teardown is the Closed state: release the socket, deregister everywhere,
// and notify the rooms this connection was still in.
func (s *session) teardown() {
	_ = s.conn.Close()

	rooms := s.registry.Remove(s.c)
	if s.authed {
		for _, room := range rooms {
			s.broadcast(room, proto.EventUserLeave, room.Name, s.c.Username, "")
		}
		s.log.Info().Msg("disconnected")
	} else {
		s.log.Info().Msg("disconnected before auth")
	}
	s.metrics.ActiveConnections.Dec()
}

func (s *session) countCommand(name string) {
	s.metrics.CommandsTotal.WithLabelValues(strings.ToUpper(name)).Inc()
}

func (s *session) reply(name, arg1, arg2, text string) {
	line, err := proto.Format(name, arg1, arg2, text)
	if err != nil {
		return
	}
	// A failed write surfaces on the next receive; no teardown here.
	_ = s.SendPayload([]byte(line))
}

func (s *session) replyOK(what string) {
	s.reply(proto.ReplyOK, what, "", "")
}

func (s *session) replyErr(code, reason string) {
	s.reply(proto.ReplyErr, code, "", reason)
}
