package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/rewired-gh/spreadwatch/internal/report"
	"github.com/rewired-gh/spreadwatch/internal/storage"
)

// queryCommand runs one of the read-only store subcommands.
func queryCommand(ctx context.Context, command string, store *storage.Storage, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(out)
	minutes := fs.Int("minutes", 5, "Look-back window in minutes (recent)")
	changesOnly := fs.Bool("changes-only", false, "Hide NEW snapshots (recent)")
	hours := fs.Int("hours", 24, "Look-back window in hours (history, summary)")
	top := fs.Int("top", 10, "Number of moves to show (moves)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	now := time.Now()
	switch command {
	case "recent":
		snapshots, err := store.RecentSnapshots(ctx, now.Add(-time.Duration(*minutes)*time.Minute), *changesOnly)
		if err != nil {
			return err
		}
		return report.Snapshots(out, snapshots)

	case "history":
		if fs.NArg() != 1 {
			return fmt.Errorf("history requires exactly one spread name")
		}
		snapshots, err := store.SpreadHistory(ctx, fs.Arg(0), now.Add(-time.Duration(*hours)*time.Hour))
		if err != nil {
			return err
		}
		return report.Snapshots(out, snapshots)

	case "stats":
		st, err := store.Stats(ctx)
		if err != nil {
			return err
		}
		return report.Stats(out, st, now)

	case "moves":
		snapshots, err := store.LargestMoves(ctx, *top)
		if err != nil {
			return err
		}
		return report.Snapshots(out, snapshots)

	case "summary":
		rows, err := store.Summary(ctx, now.Add(-time.Duration(*hours)*time.Hour))
		if err != nil {
			return err
		}
		return report.Summary(out, rows, now)
	}
	return fmt.Errorf("unknown command %q", command)
}
