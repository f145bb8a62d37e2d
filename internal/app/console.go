package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/vibesync/client/internal/domain"
	"github.com/vibesync/client/internal/engine"
	"github.com/vibesync/client/internal/rejoin"
	"github.com/vibesync/client/internal/spotify"
)

const searchLimit = 5

// console is the interactive front of the client: every command maps to
// a local intent or a read of the reconciled state.
type console struct {
	engine      *engine.Engine
	coordinator *rejoin.Coordinator
	catalog     *spotify.Client
	logger      *slog.Logger

	results []domain.Track
}

func newConsole(eng *engine.Engine, coordinator *rejoin.Coordinator, catalog *spotify.Client, logger *slog.Logger) *console {
	return &console{
		engine:      eng,
		coordinator: coordinator,
		catalog:     catalog,
		logger:      logger,
	}
}

func (c *console) run(ctx context.Context) error {
	rl, err := readline.New("vibesync> ")
	if err != nil {
		return fmt.Errorf("failed to init console: %w", err)
	}
	defer rl.Close()

	go func() {
		<-ctx.Done()
		rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if err := c.handle(ctx, strings.TrimSpace(line)); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Println("error:", err)
		}
	}
}

var errQuit = errors.New("quit")

func (c *console) handle(ctx context.Context, line string) error {
	if line == "" {
		return nil
	}

	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "join":
		if len(args) != 1 {
			return fmt.Errorf("usage: join <room>")
		}
		return c.coordinator.Join(strings.ToLower(args[0]))

	case "leave":
		c.coordinator.Forget()
		return c.engine.Leave()

	case "search":
		if len(args) == 0 {
			return fmt.Errorf("usage: search <query>")
		}
		return c.search(ctx, strings.Join(args, " "))

	case "add":
		if len(args) != 1 {
			return fmt.Errorf("usage: add <result-number>")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 || n > len(c.results) {
			return fmt.Errorf("no search result %q", args[0])
		}
		return c.engine.JoinQueue(c.results[n-1])

	case "remove":
		if len(args) != 1 {
			return fmt.Errorf("usage: remove <uuid>")
		}
		return c.engine.Remove(args[0])

	case "skip":
		return c.engine.Skip()

	case "toggle", "play", "pause":
		return c.engine.Toggle()

	case "seek":
		if len(args) != 1 {
			return fmt.Errorf("usage: seek <seconds>")
		}
		secs, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid position %q", args[0])
		}
		return c.engine.Seek(secs * 1000)

	case "vibe":
		if len(args) == 0 {
			return fmt.Errorf("usage: vibe <mood text>")
		}
		return c.engine.SetVibe(strings.Join(args, " "))

	case "status":
		c.printStatus()
		return nil

	case "queue":
		c.printQueue()
		return nil

	case "help":
		fmt.Println("commands: join leave search add remove skip toggle seek vibe status queue quit")
		return nil

	case "quit", "exit":
		return errQuit

	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

func (c *console) search(ctx context.Context, query string) error {
	if c.catalog == nil {
		return fmt.Errorf("not logged in: search unavailable")
	}

	searchCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	results, err := c.catalog.SearchTracks(searchCtx, query, searchLimit)
	if err != nil {
		return err
	}

	c.results = results
	for i, t := range results {
		fmt.Printf("%d. %s — %s (%s)\n", i+1, t.Name, t.Artist, formatMs(t.DurationMs))
	}
	if len(results) == 0 {
		fmt.Println("no results")
	}

	return nil
}

func (c *console) printStatus() {
	state := c.engine.Snapshot()
	progress := c.engine.Progress()

	if room := c.engine.RoomID(); room != "" {
		fmt.Println("room:", room)
	} else {
		fmt.Println("not in a room")
	}

	if state.ActiveVibe != "" {
		fmt.Println("vibe:", state.ActiveVibe)
	}

	if state.CurrentTrack == nil {
		fmt.Println("nothing playing")
	} else {
		verb := "paused"
		if state.IsPlaying {
			verb = "playing"
		}
		who := state.CurrentTrack.AddedByName
		if state.CurrentTrack.IsAutoPicked() {
			who = "AI DJ"
		}
		fmt.Printf("%s: %s — %s [%s/%s] (added by %s)\n",
			verb, state.CurrentTrack.Name, state.CurrentTrack.Artist,
			formatMs(progress.PositionMs), formatMs(progress.DurationMs), who)
	}

	if len(state.Users) > 0 {
		names := make([]string, 0, len(state.Users))
		for _, u := range state.Users {
			names = append(names, u.Name)
		}
		fmt.Println("listeners:", strings.Join(names, ", "))
	}
}

func (c *console) printQueue() {
	state := c.engine.Snapshot()

	if len(state.Queue) == 0 {
		fmt.Println("queue is empty")
	}
	for i, t := range state.Queue {
		fmt.Printf("%d. %s — %s [%s]\n", i+1, t.Name, t.Artist, t.UUID)
	}

	if len(state.History) > 0 {
		fmt.Println("recently played:")
		for _, t := range state.History {
			fmt.Printf("   %s — %s\n", t.Name, t.Artist)
		}
	}
}

func formatMs(ms int) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
