package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/park285/chess-duel/internal/player"
)

// console drives a player.Controller from line input.
type console struct {
	ctl *player.Controller
	out io.Writer

	mu         sync.Mutex
	lastStatus string
	lastNotice string
}

func newConsole(out io.Writer) *console { return &console{out: out} }

// changed is the controller's OnChange hook; it prints the game_start announcement
// once and the status line when it moves.
func (c *console) changed() {
	if c.ctl == nil {
		return
	}
	notice, status := c.ctl.Announcement(), c.ctl.Status()
	c.mu.Lock()
	defer c.mu.Unlock()
	if notice != "" && notice != c.lastNotice {
		c.lastNotice = notice
		fmt.Fprintf(c.out, "* %s\n", notice)
	}
	if status == "" || status == c.lastStatus {
		return
	}
	c.lastStatus = status
	fmt.Fprintf(c.out, "> %s\n", status)
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// run reads commands until quit, EOF or ctx is done.
func (c *console) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	errCh := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			}
		}
		errCh <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return err
		case line := <-lines:
			if quit := c.exec(ctx, line); quit {
				return nil
			}
		}
	}
}

func (c *console) exec(ctx context.Context, line string) (quit bool) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "quit", "exit", "q":
		return true
	case "help", "?":
		c.printf("moves: e2 e4 | e2e4 | e2-e4\ncommands: log, fen, legal, status, reset, quit\n")
	case "log":
		c.printf("%s\n", strings.Join(c.ctl.MoveLog(), " "))
	case "fen":
		c.printf("%s\n", c.ctl.FEN())
	case "status":
		c.printf("%s\n", c.ctl.Status())
	case "legal":
		moves := c.ctl.LegalMoves()
		parts := make([]string, len(moves))
		for i, m := range moves {
			parts[i] = m.UCI()
		}
		c.printf("%s\n", strings.Join(parts, " "))
	case "reset":
		if err := c.ctl.Reset(); err != nil {
			c.printf("reset: %v\n", err)
		}
	default:
		from, to, ok := parseMove(fields)
		if !ok {
			c.printf("unrecognised input %q, try help\n", line)
			return false
		}
		if !c.ctl.Drop(ctx, from, to) {
			c.printf("move %s%s not accepted\n", from, to)
		}
	}
	return false
}

// parseMove accepts "e2 e4", "e2e4" and "e2-e4". Promotion letters are ignored;
// pawns always promote to a queen.
func parseMove(fields []string) (from, to string, ok bool) {
	switch len(fields) {
	case 1:
		s := strings.ReplaceAll(fields[0], "-", "")
		if len(s) < 4 {
			return "", "", false
		}
		from, to = s[:2], s[2:4]
	case 2:
		from, to = fields[0], fields[1]
	default:
		return "", "", false
	}
	return from, to, isSquare(from) && isSquare(to)
}

func isSquare(s string) bool {
	return len(s) == 2 && s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}
