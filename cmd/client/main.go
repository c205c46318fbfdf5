// Terminal chat client. Dials the server, authenticates, and turns stdin
// lines into commands: /join, /leave, /pm, /ping, /quit; anything else is a
// message to the current room.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/vovakirdan/framechat/internal/frame"
	"github.com/vovakirdan/framechat/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("framechat client: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "localhost:5555", "server address")
	user := flag.String("user", "cli-user", "username")
	password := flag.String("password", "", "shared connection secret")
	room := flag.String("room", "general", "room to join after auth")
	maxFrame := flag.Uint("max-frame", frame.DefaultMaxPayload, "maximum frame payload size")
	flag.Parse()

	if *password == "" {
		return fmt.Errorf("--password is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	send := func(name, arg1, arg2, text string) error {
		line, err := proto.Format(name, arg1, arg2, text)
		if err != nil {
			return err
		}
		return frame.Send(conn, []byte(line))
	}

	// Server speaks first.
	greeting, err := frame.Receive(conn, uint32(*maxFrame))
	if err != nil {
		return fmt.Errorf("greeting: %w", err)
	}
	if string(greeting) != proto.Greeting {
		return fmt.Errorf("unexpected greeting %q", greeting)
	}

	if err := send(proto.CmdAuth, *user, *password, ""); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := send(proto.CmdJoin, *room, "", ""); err != nil {
		return fmt.Errorf("join: %w", err)
	}

	fmt.Printf("Connected to %s as %s in room %s\n", *addr, *user, *room)
	fmt.Println("Commands: /join room, /leave room, /pm user message, /ping, /quit")

	recvDone := make(chan error, 1)
	go func() {
		recvDone <- receiveLoop(conn, uint32(*maxFrame))
	}()

	inputDone := make(chan error, 1)
	go func() {
		inputDone <- inputLoop(send, *room)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-recvDone:
		return err
	case err := <-inputDone:
		return err
	}
}

// receiveLoop prints every server frame until the connection breaks.
func receiveLoop(conn net.Conn, maxFrame uint32) error {
	for {
		payload, err := frame.Receive(conn, maxFrame)
		if err != nil {
			return fmt.Errorf("connection lost: %w", err)
		}
		cmd, err := proto.Parse(string(payload))
		if err != nil {
			continue
		}
		fmt.Println(render(cmd))
	}
}

func render(cmd proto.Command) string {
	switch {
	case cmd.Is(proto.EventRoomMsg):
		return fmt.Sprintf("[%s] %s: %s", cmd.Arg1, cmd.Arg2, cmd.Text)
	case cmd.Is(proto.EventPrivMsg):
		return fmt.Sprintf("(pm) %s: %s", cmd.Arg1, cmd.Text)
	case cmd.Is(proto.EventUserJoin):
		return fmt.Sprintf("[%s] * %s joined", cmd.Arg1, cmd.Arg2)
	case cmd.Is(proto.EventUserLeave):
		return fmt.Sprintf("[%s] * %s left", cmd.Arg1, cmd.Arg2)
	case cmd.Is(proto.ReplyErr):
		return fmt.Sprintf("error %s: %s", cmd.Arg1, cmd.Text)
	case cmd.Is(proto.ReplyOK):
		return fmt.Sprintf("ok: %s", cmd.Arg1)
	case cmd.Is(proto.ReplyPong):
		return "pong"
	default:
		return fmt.Sprintf("%s %s %s %s", cmd.Name, cmd.Arg1, cmd.Arg2, cmd.Text)
	}
}

type sendFunc func(name, arg1, arg2, text string) error

// inputLoop reads stdin lines and maps them onto protocol commands. The
// current room tracks the last /join.
func inputLoop(send sendFunc, room string) error {
	scanner := bufio.NewScanner(os.Stdin)
	current := room

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "/join "):
			current = strings.TrimSpace(strings.TrimPrefix(line, "/join "))
			if err := send(proto.CmdJoin, current, "", ""); err != nil {
				return err
			}
		case strings.HasPrefix(line, "/leave "):
			target := strings.TrimSpace(strings.TrimPrefix(line, "/leave "))
			if err := send(proto.CmdLeave, target, "", ""); err != nil {
				return err
			}
			if strings.EqualFold(target, current) {
				current = ""
			}
		case strings.HasPrefix(line, "/pm "):
			rest := strings.TrimPrefix(line, "/pm ")
			user, msg, ok := strings.Cut(rest, " ")
			if !ok {
				fmt.Println("usage: /pm user message")
				continue
			}
			if err := send(proto.CmdPM, user, "", msg); err != nil {
				return err
			}
		case line == "/ping":
			if err := send(proto.CmdPing, "", "", ""); err != nil {
				return err
			}
		case line == "/quit":
			return nil
		default:
			if current == "" {
				fmt.Println("join a room first: /join room")
				continue
			}
			if err := send(proto.CmdMsg, current, "", line); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}
