package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tarun-08/pingme/internal/backend/httpapi"
	"github.com/tarun-08/pingme/internal/client/convo"
	"github.com/tarun-08/pingme/internal/client/credstore"
	"github.com/tarun-08/pingme/internal/client/profile"
	"github.com/tarun-08/pingme/internal/client/search"
	"github.com/tarun-08/pingme/internal/client/send"
	"github.com/tarun-08/pingme/internal/client/session"
	"github.com/tarun-08/pingme/internal/client/stream"
	"github.com/tarun-08/pingme/internal/config"
	"github.com/tarun-08/pingme/internal/models"
	"github.com/tarun-08/pingme/internal/observ"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Diagnostics go through zap like everywhere else; the conversational
	// output below prints straight to stdout.
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	creds, err := credstore.Open(filepath.Join(cfg.StateDir, "credentials.db"))
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	defer creds.Close()

	api := httpapi.NewClient(cfg.ServerURL, logger)
	if stored, err := creds.Load(); err == nil {
		api.SetToken(stored.Token)
	} else if !errors.Is(err, credstore.ErrNoCredentials) {
		logger.Warn("could not read stored credentials; starting signed out", zap.Error(err))
	}

	profiles := profile.NewCache(api)
	mgr := session.NewManager(api, profiles, creds, cfg.BootstrapTimeout, logger)
	defer mgr.Close()

	snap := mgr.Bootstrap(context.Background())
	if snap.Authenticated() {
		fmt.Printf("signed in as %s\n", snap.Email)
	} else {
		fmt.Println("not signed in — use 'login' or 'signup'")
	}

	app := &app{
		api:      api,
		profiles: profiles,
		mgr:      mgr,
		resolver: convo.NewResolver(api, logger),
		logger:   logger,
		in:       bufio.NewScanner(os.Stdin),
	}
	return app.loop()
}

type app struct {
	api      *httpapi.Client
	profiles *profile.Cache
	mgr      *session.Manager
	resolver *convo.Resolver
	logger   *zap.Logger
	in       *bufio.Scanner

	directory []models.Profile
}

func (a *app) loop() error {
	fmt.Println("commands: signup, login, logout, whoami, list [query], open <username>, quit")
	for {
		fmt.Print("> ")
		if !a.in.Scan() {
			return a.in.Err()
		}
		line := strings.TrimSpace(a.in.Text())
		if line == "" {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")

		switch cmd {
		case "quit", "exit":
			return nil
		case "signup":
			a.signup()
		case "login":
			a.login()
		case "logout":
			a.logout()
		case "whoami":
			a.whoami()
		case "list":
			a.list(arg)
		case "open":
			a.open(strings.TrimSpace(arg))
		default:
			fmt.Println("unknown command")
		}
	}
}

func (a *app) prompt(label string) string {
	fmt.Print(label)
	if !a.in.Scan() {
		return ""
	}
	return strings.TrimSpace(a.in.Text())
}

func (a *app) signup() {
	email := a.prompt("email: ")
	password := a.prompt("password: ")
	username := a.prompt("username (blank for default): ")

	snap, err := a.mgr.SignUp(context.Background(), email, password, username)
	if err != nil {
		fmt.Printf("signup failed: %v\n", err)
		return
	}
	fmt.Printf("welcome, %s\n", snap.Profile.Username)
}

func (a *app) login() {
	email := a.prompt("email: ")
	password := a.prompt("password: ")

	snap, err := a.mgr.SignIn(context.Background(), email, password)
	if err != nil {
		fmt.Printf("login failed: %v\n", err)
		return
	}
	fmt.Printf("signed in as %s\n", snap.Email)
}

func (a *app) logout() {
	if err := a.mgr.SignOut(context.Background()); err != nil {
		fmt.Printf("logout: %v\n", err)
	}
	a.directory = nil
	fmt.Println("signed out")
}

func (a *app) whoami() {
	snap := a.mgr.Snapshot()
	if !snap.Authenticated() {
		fmt.Println("not signed in")
		return
	}
	name := ""
	if snap.Profile != nil {
		name = snap.Profile.Username
	}
	fmt.Printf("%s <%s>\n", name, snap.Email)
}

// myProfile resolves the signed-in user's directory row (not the
// provisional one) — conversations reference profile ids.
func (a *app) myProfile(ctx context.Context) (*models.Profile, error) {
	snap := a.mgr.Snapshot()
	if !snap.Authenticated() {
		return nil, fmt.Errorf("not signed in")
	}
	return a.profiles.Lookup(ctx, snap.UserID)
}

func (a *app) list(query string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	me, err := a.myProfile(ctx)
	if err != nil {
		fmt.Printf("list: %v\n", err)
		return
	}

	directory, err := a.api.ListProfiles(ctx, me.ID)
	if err != nil {
		fmt.Printf("list: %v\n", err)
		return
	}
	a.directory = directory

	for _, p := range search.Filter(directory, query) {
		fmt.Printf("  %-20s %s\n", p.Username, p.Email)
	}
}

func (a *app) open(username string) {
	if username == "" {
		fmt.Println("usage: open <username>")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	me, err := a.myProfile(ctx)
	if err != nil {
		fmt.Printf("open: %v\n", err)
		return
	}

	if a.directory == nil {
		directory, err := a.api.ListProfiles(ctx, me.ID)
		if err != nil {
			fmt.Printf("open: %v\n", err)
			return
		}
		a.directory = directory
	}

	var other *models.Profile
	for i := range a.directory {
		if strings.EqualFold(a.directory[i].Username, username) {
			other = &a.directory[i]
			break
		}
	}
	if other == nil {
		fmt.Printf("no such user %q (try 'list')\n", username)
		return
	}

	conv, err := a.resolver.Resolve(ctx, me.ID, other.ID)
	if err != nil {
		fmt.Printf("open: %v\n", err)
		return
	}

	a.chat(me, other, conv.ID)
}

func (a *app) chat(me, other *models.Profile, conversationID uuid.UUID) {
	printed := 0
	var feed *stream.Stream

	// Incoming pushes can arrive in bursts; the debouncer coalesces them
	// into a single redraw instead of printing per delivery. Stopped on
	// the way out so a queued redraw can't fire into a closed chat.
	redraw := search.NewDebouncer(75 * time.Millisecond)
	defer redraw.Stop()

	printNew := func() {
		msgs := feed.Messages()
		for ; printed < len(msgs); printed++ {
			m := msgs[printed]
			name := other.Username
			if m.SenderID == me.ID {
				name = "you"
			}
			fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), name, m.Content)
		}
	}

	openCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	feed, err := stream.Open(openCtx, a.api, conversationID, func() {
		redraw.Do(printNew)
	}, a.logger)
	cancel()
	if err != nil {
		fmt.Printf("chat: %v\n", err)
		return
	}
	defer feed.Close()

	printNew()
	fmt.Printf("-- chatting with %s, /quit to leave --\n", other.Username)

	sender := send.NewController(a.api, feed, conversationID, me.ID, a.logger)
	for {
		if !a.in.Scan() {
			return
		}
		line := a.in.Text()
		if strings.TrimSpace(line) == "/quit" {
			return
		}
		sender.SetDraft(line)
		sendCtx, sendCancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := sender.Send(sendCtx)
		sendCancel()
		if err != nil {
			fmt.Printf("send failed (draft kept): %v\n", err)
		}
	}
}
