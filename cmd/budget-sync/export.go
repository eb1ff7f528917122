package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/budget-sync/internal/journal"
)

func (a *app) exportCommand(parent *ff.FlagSet) *ff.Command {
	fs := ff.NewFlagSet("export").SetParent(parent)
	var (
		from = fs.StringLong("from", "", "start date (YYYY-MM-DD)")
		to   = fs.StringLong("to", "", "end date (YYYY-MM-DD)")
		out  = fs.StringLong("out", "transactions.csv", "output file")
	)

	return &ff.Command{
		Name:      "export",
		Usage:     "budget-sync export [FLAGS]",
		ShortHelp: "download transactions as CSV",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			now := time.Now()
			start, err := parseDateFlag(*from, now)
			if err != nil {
				return err
			}
			end, err := parseDateFlag(*to, now)
			if err != nil {
				return err
			}

			body, err := a.client.ExportCSV(ctx, start, end)
			if err != nil {
				return fmt.Errorf("exporting: %w", err)
			}
			defer body.Close()

			data, err := io.ReadAll(body)
			if err != nil {
				return fmt.Errorf("reading export: %w", err)
			}

			storage, err := journal.NewLocalStorage(filepath.Dir(*out))
			if err != nil {
				return err
			}
			name, err := storage.Save(filepath.Base(*out), data)
			if err != nil {
				return fmt.Errorf("saving export: %w", err)
			}

			fmt.Fprintf(a.stdout, "Wrote %s (%s)\n", storage.Path(name), humanize.Bytes(uint64(len(data))))
			return nil
		},
	}
}

func (a *app) scansCommand(parent *ff.FlagSet) *ff.Command {
	fs := ff.NewFlagSet("scans").SetParent(parent)
	var (
		limit  = fs.IntLong("limit", 20, "maximum number of entries (0 for all)")
		remove = fs.StringLong("rm", "", "delete the entry with this id and its archived upload")
	)

	return &ff.Command{
		Name:      "scans",
		Usage:     "budget-sync scans [FLAGS]",
		ShortHelp: "show the local scan journal",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			j, closeJournal, err := a.openJournal()
			if err != nil {
				return err
			}
			defer closeJournal()

			if *remove != "" {
				if err := j.Remove(*remove); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "Removed scan %s\n", *remove)
				return nil
			}

			records, err := j.Entries(*limit)
			if err != nil {
				return err
			}
			printScanRecords(a.stdout, records)
			return nil
		},
	}
}
