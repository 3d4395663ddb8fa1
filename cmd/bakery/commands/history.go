package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/bakery/internal/history"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int `short:"n" help:"Number of bakes to show" default:"20"`
}

func (h *HistoryCmd) Run(root *CLI) error {
	s, err := root.OpenSite()
	if err != nil {
		return err
	}
	store, err := history.Open(historyPath(s.Config))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	bakes, err := store.Recent(context.Background(), h.Limit)
	if err != nil {
		return err
	}
	if len(bakes) == 0 {
		fmt.Println("No bakes recorded")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tBAKE\tSUCCESS\tENTRIES\tFAILED\tPASSES\tDURATION\tREASON")
	for _, b := range bakes {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%d\t%d\t%s\t%s\n",
			b.StartedAt.Local().Format("2006-01-02 15:04:05"), b.BakeID, b.Success,
			b.Entries, b.FailedEntries, b.Passes, b.Duration.Round(time.Millisecond), b.InvalidReason)
	}
	return tw.Flush()
}
