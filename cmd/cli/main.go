package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/myrjola/mavis/cmd/cli/play"
	"github.com/myrjola/mavis/cmd/cli/replay"
	"github.com/myrjola/mavis/internal/errors"
	"github.com/spf13/cobra"
)

func init() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	rootCmd.AddGroup(replay.Group)
	rootCmd.AddCommand(replay.Command)
	rootCmd.AddCommand(play.Command)
}

var rootCmd = &cobra.Command{
	Use:          "mavis-cli",
	Short:        "Terminal front end for the MAVIS planning simulator",
	Long:         `Replays or plays the MAVIS planning timeline in the terminal.`,
	SilenceUsage: true,
}

func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	Execute(ctx)
}
