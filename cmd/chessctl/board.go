package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/park285/chess-duel/internal/relayclient"
	"github.com/park285/chess-duel/internal/render"
	"github.com/park285/chess-duel/internal/rules"
	"github.com/park285/chess-duel/pkg/wire"
)

var (
	flagFEN         string
	flagGameID      string
	flagOrientation string
	flagOutput      string
	flagSquare      int
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Render a position or a live game to PNG",
	Long: `Render a FEN locally, or fetch the preview of a live game from the relay.

Examples:
  chessctl board -o start.png
  chessctl board --fen "7k/8/6K1/8/8/8/8/5Q2 w - - 0 1" --orientation black -o p.png
  chessctl board --game game_1700000000000 -o live.png`,
	Args: cobra.NoArgs,
	RunE: runBoard,
}

func init() {
	boardCmd.Flags().StringVar(&flagFEN, "fen", "", "Position to render (default: start position)")
	boardCmd.Flags().StringVar(&flagGameID, "game", "", "Live game id to fetch from the relay")
	boardCmd.Flags().StringVar(&flagOrientation, "orientation", "white", "Side shown at the bottom")
	boardCmd.Flags().StringVarP(&flagOutput, "output", "o", "board.png", "Output file")
	boardCmd.Flags().IntVar(&flagSquare, "square", 64, "Square size in pixels for local renders")
}

func runBoard(cmd *cobra.Command, _ []string) error {
	if flagFEN != "" && flagGameID != "" {
		return errors.New("--fen and --game are mutually exclusive")
	}
	orientation, ok := rules.ParseColor(flagOrientation)
	if !ok {
		return fmt.Errorf("unknown orientation %q", flagOrientation)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var png []byte
	var err error
	if flagGameID != "" {
		png, err = relayclient.NewStatusClient(flagServer).Board(ctx, flagGameID, orientation.String())
	} else {
		fen := flagFEN
		if fen == "" {
			fen = wire.StartFEN
		}
		png, err = render.New(flagSquare).RenderFEN(ctx, fen, render.Options{Orientation: orientation})
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(flagOutput, png, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", flagOutput, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", flagOutput, len(png))
	return nil
}
