// Package proto defines the text command grammar carried inside frames and
// the vocabulary both sides of the wire speak.
//
// A payload is a single line of the form
//
//	NAME [ARG1 [ARG2]] [:FREETEXT]
//
// Command names are matched case-insensitively. Free text begins after the
// first " :" and runs to the end of the payload.
package proto

// ProtocolVersion is announced in the server greeting.
const ProtocolVersion = 1

// Greeting is the first frame a server sends on every new connection.
const Greeting = "HELLO 1"

// Client → server command names.
const (
	CmdAuth  = "AUTH"
	CmdJoin  = "JOIN"
	CmdLeave = "LEAVE"
	CmdMsg   = "MSG"
	CmdPM    = "PM"
	CmdPing  = "PING"
)

// Server → client reply and event names.
const (
	ReplyOK   = "OK"
	ReplyErr  = "ERR"
	ReplyPong = "PONG"

	EventUserJoin  = "USERJOIN"
	EventUserLeave = "USERLEAVE"
	EventRoomMsg   = "ROOMMSG"
	EventPrivMsg   = "PRIVMSG"
)

// Error codes carried as the first argument of an ERR reply.
const (
	ErrCodeBad     = "BAD"   // malformed payload
	ErrCodeAuth    = "AUTH"  // authentication failures and pre-auth commands
	ErrCodeJoin    = "JOIN"  // join failures
	ErrCodeLeave   = "LEAVE" // leave failures
	ErrCodeMsg     = "MSG"   // room message failures
	ErrCodePM      = "PM"    // private message failures
	ErrCodeUnknown = "CMD"   // unrecognized command name
	ErrCodeLimit   = "LIMIT" // command rate exceeded
)
