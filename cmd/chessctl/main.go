// chessctl is the client side of chess-duel: a terminal player for bot and
// multiplayer games plus a few operator views of a running relay.
//
// Usage:
//
//	chessctl bot                 - Play the random bot locally
//	chessctl play                - Find an opponent through the relay
//	chessctl status              - Show relay socket info and counters
//	chessctl sessions            - List live sessions from the Redis mirror
//	chessctl history             - List archived games
//	chessctl board               - Render a position or live game to PNG
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	appcfg "github.com/park285/chess-duel/internal/config"
)

var (
	flagServer   string
	flagMessages string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "chessctl",
	Short: "Terminal chess client for chess-duel",
	Long: `chessctl plays chess against a random bot or against another player
through a chess-duel relay, and inspects a running relay.

Examples:
  chessctl bot
  chessctl play --server http://localhost:3000
  chessctl status
  chessctl board --fen "8/8/8/8/8/8/1r6/K6k w - - 0 1" -o board.png`,
	SilenceUsage: true,
}

// defaults shares the server's environment so both sides agree on paths and timing.
var defaults = loadDefaults()

func loadDefaults() *appcfg.AppConfig {
	cfg, err := appcfg.Load()
	if err != nil {
		return &appcfg.AppConfig{WSPath: "/ws", BotMoveDelay: 300 * time.Millisecond}
	}
	return cfg
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", envDefault("CHESS_SERVER", "http://localhost:3000"), "Relay base URL")
	rootCmd.PersistentFlags().StringVar(&flagMessages, "messages", defaults.MsgOverrideDir, "Directory of message override YAML files")

	rootCmd.AddCommand(botCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(boardCmd)
}

func envDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
