// Command peer is a terminal endpoint for the signaling server: it connects
// with a token, prints presence updates, and can place or answer calls.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/avorobev/peertalk/internal/adapters/rtc"
	"github.com/avorobev/peertalk/internal/call"
	"github.com/avorobev/peertalk/internal/core"
	"github.com/avorobev/peertalk/internal/domain"
	"github.com/avorobev/peertalk/internal/proto"
)

// clientConn adapts a dialed gorilla connection to core.SignalConnection.
type clientConn struct {
	ws *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func (c *clientConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	return c.ws.WriteMessage(websocket.TextMessage, f)
}

func (c *clientConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	_ = c.ws.Close()
}

func main() {
	server := flag.String("server", "ws://localhost:8080/api/ws/signal", "signaling server URL")
	token := flag.String("token", "", "connect credential (JWT)")
	user := flag.String("user", "", "own user id (must match the token's userId claim)")
	name := flag.String("name", "peer", "display name sent with calls")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+*token)
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, *server, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			fmt.Fprintln(os.Stderr, "connection rejected: bad credential")
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "dial: %v\n", err)
		os.Exit(1)
	}
	conn := &clientConn{ws: ws}

	media := func(ctx context.Context, callID domain.CallID) (core.MediaConnection, error) {
		return rtc.NewConnection(rtc.DefaultConfig(), callID)
	}
	ep := call.NewEndpoint(
		domain.User{ID: domain.UserID(*user), Username: *name},
		conn, media, rtc.NewStaticSource(),
	)
	defer ep.Close()

	ep.OnIncoming(func(s *call.CallSession) {
		fmt.Printf("incoming %s call %s from %s — 'accept %s' or 'reject %s'\n",
			s.Kind(), s.ID(), s.Caller(), s.ID(), s.ID())
	})
	ep.OnNotice(func(n proto.Notice) {
		fmt.Printf("notice: %s\n", n.Message)
	})
	ep.OnOnline(func(users []domain.UserID) {
		fmt.Printf("online: %v\n", users)
	})

	go func() {
		defer cancel()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					fmt.Fprintf(os.Stderr, "connection lost: %v\n", err)
				}
				return
			}
			ep.HandleFrame(ctx, data)
		}
	}()

	go repl(ctx, ep)

	<-ctx.Done()
}

func repl(ctx context.Context, ep *call.Endpoint) {
	var last domain.CallID
	sc := bufio.NewScanner(os.Stdin)
	fmt.Println("commands: callvoice <user> | callvideo <user> | accept <id> | reject <id> | end <id> | quit")
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		var err error
		switch fields[0] {
		case "callvoice", "callvideo":
			if len(fields) < 2 {
				fmt.Println("usage: callvoice <user>")
				continue
			}
			kind := domain.KindVoice
			if fields[0] == "callvideo" {
				kind = domain.KindVideo
			}
			var s *call.CallSession
			s, err = ep.InitiateCall(domain.UserID(fields[1]), kind)
			if err == nil {
				last = s.ID()
				fmt.Printf("ringing %s (call %s)\n", fields[1], last)
			}
		case "accept":
			err = ep.Accept(ctx, argCallID(fields, last))
		case "reject":
			err = ep.Reject(argCallID(fields, last), "declined")
		case "end":
			err = ep.End(argCallID(fields, last))
		case "quit":
			return
		default:
			fmt.Println("unknown command")
		}
		if err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

func argCallID(fields []string, fallback domain.CallID) domain.CallID {
	if len(fields) > 1 {
		return domain.CallID(fields[1])
	}
	return fallback
}
