package commands

import (
	"fmt"
	"io"
	"os"

	"git.home.luguber.info/inful/bakery/internal/cache"
	foundationerrors "git.home.luguber.info/inful/bakery/internal/foundation/errors"
	"git.home.luguber.info/inful/bakery/internal/records"
)

// RecordsCmd implements the 'records' command.
type RecordsCmd struct {
	Output        string `short:"o" help:"Output directory the records belong to"`
	RecordsSuffix string `name:"records-suffix" help:"Suffix distinguishing record files of the same output directory"`
	Backup        int    `help:"Show backup generation N (1 is the most recent) instead of the primary"`
	Diff          bool   `help:"Diff the selected generation against the one before it"`
	Entries       bool   `help:"List every entry"`
}

func (r *RecordsCmd) Run(root *CLI) error {
	s, err := root.OpenSite()
	if err != nil {
		return err
	}
	region, err := s.Cache.GetCache(cache.Baker)
	if err != nil {
		return err
	}
	path, err := records.ComputeRecordsPath(region, ResolveOutputDir(r.Output, s.Config), r.RecordsSuffix)
	if err != nil {
		return err
	}
	if r.Backup < 0 || r.Backup > records.MaxBackups {
		return foundationerrors.ValidationError(fmt.Sprintf("backup must be between 0 and %d", records.MaxBackups)).Build()
	}

	cur, err := loadGeneration(path, r.Backup)
	if err != nil {
		return err
	}
	if !r.Diff {
		printGeneration(os.Stdout, cur, r.Entries)
		return nil
	}
	prev, err := loadGeneration(path, r.Backup+1)
	if err != nil {
		return err
	}
	printDiff(os.Stdout, records.NewHistory(prev, cur))
	return nil
}

func loadGeneration(path string, n int) (*records.MultiRecord, error) {
	p := records.BackupPath(path, n)
	mr, err := records.Load(p)
	if err != nil {
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryNotFound, "no usable records").
			WithContext("path", p).Build()
	}
	return mr, nil
}

func printGeneration(w io.Writer, mr *records.MultiRecord, entries bool) {
	fmt.Fprintf(w, "Bake:        %s\n", mr.BakeID)
	fmt.Fprintf(w, "Time:        %s\n", mr.BakeTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Output:      %s\n", mr.OutDir)
	fmt.Fprintf(w, "Success:     %t\n", mr.Success)
	fmt.Fprintf(w, "Incremental: %d\n", mr.IncrementalCount)
	if mr.SourceRevision != "" {
		fmt.Fprintf(w, "Revision:    %s\n", mr.SourceRevision)
	}
	for _, name := range mr.RecordNames() {
		rec := mr.Records[name]
		fmt.Fprintf(w, "\n[%s] entries=%d success=%t\n", name, len(rec.Entries), rec.Success)
		for _, e := range rec.Entries {
			if !entries && e.Success() {
				continue
			}
			status := "ok"
			switch {
			case !e.Success():
				status = "FAILED"
			case e.Overridden:
				status = "overridden"
			case e.Reused:
				status = "reused"
			}
			fmt.Fprintf(w, "  %-10s %s\n", status, e.ItemSpec)
			for _, o := range e.Outputs {
				fmt.Fprintf(w, "             -> %s\n", o)
			}
			for _, msg := range e.Errors {
				fmt.Fprintf(w, "             ! %s\n", msg)
			}
		}
	}
}

func printDiff(w io.Writer, h *records.MultiRecordHistory) {
	for _, name := range h.RecordNames() {
		d := h.Diff(name)
		if d.Empty() {
			continue
		}
		fmt.Fprintf(w, "[%s]\n", name)
		for _, spec := range d.Added {
			fmt.Fprintf(w, "  + %s\n", spec)
		}
		for _, spec := range d.Removed {
			fmt.Fprintf(w, "  - %s\n", spec)
		}
		for _, spec := range d.Changed {
			fmt.Fprintf(w, "  ~ %s\n", spec)
		}
	}
}
