package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"room_chat/internal/client"
	"room_chat/internal/config"
	"room_chat/internal/domain"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

type options struct {
	server   string
	email    string
	password string
	name     string
	register bool
	room     string
	create   string
	private  bool
	guests   bool
	overlap  time.Duration
	logLevel string
}

func main() {
	var opts options
	flag.StringVar(&opts.server, "server", "http://localhost:8080", "chat server base URL")
	flag.StringVar(&opts.email, "email", "", "account email; empty signs in as a guest")
	flag.StringVar(&opts.password, "password", "", "account password")
	flag.StringVar(&opts.name, "name", "", "display name")
	flag.BoolVar(&opts.register, "register", false, "create the account before signing in")
	flag.StringVar(&opts.room, "room", "", "id of the room to join")
	flag.StringVar(&opts.create, "create", "", "create a room with this name instead of joining one")
	flag.BoolVar(&opts.private, "private", false, "make the created room private")
	flag.BoolVar(&opts.guests, "guests", true, "let guests join the created room")
	flag.DurationVar(&opts.overlap, "resync-overlap", client.DefaultResyncOverlap, "history re-read before the newest message on every resync; negative disables")
	flag.StringVar(&opts.logLevel, "log-level", "warn", "log level")
	flag.Parse()

	log := logger.New(opts.logLevel)
	defer func() { _ = log.Sync() }()

	if err := run(opts, log, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "chatclient:", err)
		os.Exit(1)
	}
}

func run(opts options, log logger.Logger, in io.Reader, out io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printer := &printer{out: out, seen: make(map[uuid.UUID]struct{})}
	session := client.NewSession(func() {
		printer.line("* session expired, you have been signed out")
		stop()
	})
	api := client.NewAPI(opts.server, session, 10*time.Second)

	info, err := api.ServerInfo(ctx)
	if err != nil {
		return fmt.Errorf("server info: %w", err)
	}

	if err := signIn(ctx, api, opts); err != nil {
		return err
	}

	roomID, err := openRoom(ctx, api, opts)
	if err != nil {
		return err
	}

	bo := client.BackoffConfig{Initial: 500 * time.Millisecond, Max: 30 * time.Second}
	var channel client.DeliveryChannel
	switch info.DeliveryStrategy {
	case config.DeliveryStrategyPoll:
		channel = client.NewPollChannel(info.PollInterval(), bo, log)
	default:
		channel = client.NewPushChannel(api, bo, log)
	}

	ctrl := client.NewController(api, channel, session, printer, client.ControllerConfig{ResyncOverlap: opts.overlap}, log)
	if err := ctrl.Open(ctx, roomID); err != nil {
		return fmt.Errorf("open room: %w", err)
	}
	defer ctrl.Close()

	printer.line(fmt.Sprintf("* room %s over %s delivery; /older loads history, /quit exits", roomID, info.DeliveryStrategy))

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case text, ok := <-lines:
			if !ok {
				return nil
			}
			if done := handleLine(ctx, ctrl, printer, strings.TrimSpace(text)); done {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, ctrl *client.Controller, p *printer, text string) bool {
	switch text {
	case "":
		return false
	case "/quit":
		return true
	case "/older":
		n, err := ctrl.LoadOlder(ctx)
		switch {
		case err != nil:
			p.line("* " + err.Error())
		case n == 0 && !ctrl.HasOlder():
			p.line("* no older messages")
		default:
			p.reprint(ctrl.Messages())
		}
		return false
	}
	// Failures are reported through the notifier.
	_, _ = ctrl.SendMessage(ctx, text)
	return false
}

func signIn(ctx context.Context, api *client.API, opts options) error {
	var err error
	switch {
	case opts.email == "":
		_, err = api.Guest(ctx, opts.name)
	case opts.register:
		_, err = api.Register(ctx, opts.email, opts.password, opts.name)
	default:
		_, err = api.Login(ctx, opts.email, opts.password)
	}
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	return nil
}

func openRoom(ctx context.Context, api *client.API, opts options) (uuid.UUID, error) {
	if opts.create != "" {
		room, err := api.CreateRoom(ctx, opts.create, opts.private, opts.guests)
		if err != nil {
			return uuid.Nil, fmt.Errorf("create room: %w", err)
		}
		return room.ID, nil
	}

	roomID, err := uuid.Parse(opts.room)
	if err != nil {
		return uuid.Nil, fmt.Errorf("-room must be a room id: %w", err)
	}
	if err := api.JoinRoom(ctx, roomID); err != nil && !errors.Is(err, apperrors.ErrConflict) {
		return uuid.Nil, fmt.Errorf("join room: %w", err)
	}
	return roomID, nil
}

// printer writes each message once, in arrival order. History before the
// oldest printed message is left to the full redraw done by /older.
type printer struct {
	mu     sync.Mutex
	out    io.Writer
	seen   map[uuid.UUID]struct{}
	oldest *domain.Message
	conn   client.ConnectionState
}

func (p *printer) MessagesChanged(_ uuid.UUID, msgs []*domain.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		if _, ok := p.seen[m.ID]; ok {
			continue
		}
		if p.oldest != nil && m.Less(p.oldest) {
			continue
		}
		if p.oldest == nil {
			p.oldest = m
		}
		p.seen[m.ID] = struct{}{}
		fmt.Fprintln(p.out, format(m))
	}
}

func (p *printer) ConnectionChanged(_ uuid.UUID, state client.ConnectionState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if state == p.conn {
		return
	}
	p.conn = state
	if err != nil {
		fmt.Fprintf(p.out, "* %s: %v\n", state, err)
		return
	}
	fmt.Fprintf(p.out, "* %s\n", state)
}

func (p *printer) Error(_ uuid.UUID, err error) {
	p.line("* " + apperrors.ToAPIError(err).Message)
}

func (p *printer) line(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, s)
}

func (p *printer) reprint(msgs []*domain.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, "* ---")
	if len(msgs) > 0 {
		p.oldest = msgs[0]
	}
	for _, m := range msgs {
		p.seen[m.ID] = struct{}{}
		fmt.Fprintln(p.out, format(m))
	}
}

func format(m *domain.Message) string {
	ts := m.CreatedAt.Local().Format("15:04:05")
	if m.Type == domain.MessageTypeSystem {
		return fmt.Sprintf("[%s] * %s", ts, m.Body)
	}
	body := m.Body
	if m.File != nil {
		body = fmt.Sprintf("%s [%s]", body, m.File.OriginalName)
	}
	return fmt.Sprintf("[%s] %s: %s", ts, m.AuthorName(), body)
}
