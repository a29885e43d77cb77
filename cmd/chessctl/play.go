package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/park285/chess-duel/internal/msgcat"
	"github.com/park285/chess-duel/internal/player"
	"github.com/park285/chess-duel/internal/relayclient"
	"github.com/park285/chess-duel/pkg/wire"
)

var (
	flagBotDelay time.Duration
	flagWSPath   string
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Play against the random bot",
	Long: `Play white against a bot that picks uniformly among legal moves.
Nothing touches the network.

Input:
  e2 e4 | e2e4 | e2-e4   - Move (pawns promote to a queen)
  log, fen, legal        - Inspect the game
  reset                  - Start over
  quit                   - Leave`,
	Args: cobra.NoArgs,
	RunE: runBot,
}

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Find an opponent through the relay and play",
	Long: `Connect to the relay, join the matchmaking queue and play the game
you are paired into. Closing the program ends the game for both sides.`,
	Args: cobra.NoArgs,
	RunE: runMultiplayer,
}

func init() {
	botCmd.Flags().DurationVar(&flagBotDelay, "delay", defaults.BotMoveDelay, "Pause before the bot replies")
	playCmd.Flags().StringVar(&flagWSPath, "ws-path", defaults.WSPath, "Websocket path on the relay")
}

func loadCatalog() (*msgcat.Catalog, error) {
	if strings.TrimSpace(flagMessages) == "" {
		return msgcat.Default()
	}
	return msgcat.New(flagMessages)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runBot(cmd *cobra.Command, _ []string) error {
	cat, err := loadCatalog()
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	ctx, stop := signalContext()
	defer stop()

	con := newConsole(cmd.OutOrStdout())
	ctl := player.NewBot(player.WithCatalog(cat), player.WithBotDelay(flagBotDelay), player.WithOnChange(con.changed))
	defer ctl.Close()
	con.ctl = ctl
	con.changed()
	return con.run(ctx, os.Stdin)
}

func runMultiplayer(cmd *cobra.Command, _ []string) error {
	cat, err := loadCatalog()
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	wsURL, err := websocketURL(flagServer, flagWSPath)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	client := relayclient.New(wsURL)
	con := newConsole(cmd.OutOrStdout())
	ctl := player.NewMultiplayer(client, player.WithCatalog(cat), player.WithOnChange(con.changed))
	defer ctl.Close()
	con.ctl = ctl

	client.OnMessage(func(env wire.Envelope) { ctl.Handle(ctx, env) })
	client.OnStateChange(func(s relayclient.State) {
		if s == relayclient.StateDisconnected || s == relayclient.StateFailed {
			con.printf("relay connection %s\n", s)
		}
	})

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = client.Connect(cctx)
	cancel()
	if err != nil {
		return fmt.Errorf("connect %s: %w", wsURL, err)
	}
	defer client.Close(context.Background())

	if err := ctl.FindGame(ctx); err != nil {
		return fmt.Errorf("find game: %w", err)
	}
	return con.run(ctx, os.Stdin)
}

// websocketURL maps the relay's http(s) base URL onto its ws(s) endpoint.
func websocketURL(base, path string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws", "":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server url %q has no host", base)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}
