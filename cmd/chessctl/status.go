package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/park285/chess-duel/internal/relayclient"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show relay socket info and counters",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	sc := relayclient.NewStatusClient(flagServer)

	info, err := sc.SocketInfo(ctx)
	if err != nil {
		return fmt.Errorf("socket info: %w", err)
	}
	st, err := sc.Stats(ctx)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Relay   %s\n", flagServer)
	fmt.Fprintf(out, "Socket  %s (%s)\n", info.Status, info.Message)
	fmt.Fprintf(out, "Waiting %d\n", st.Waiting)
	fmt.Fprintf(out, "Games   %d\n", st.Sessions)
	fmt.Fprintf(out, "Sockets %d\n", st.Connections)
	return nil
}
