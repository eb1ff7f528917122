package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/budget-sync/internal/gateway"
	"github.com/zombor/budget-sync/internal/store"
)

func (a *app) listCommand(parent *ff.FlagSet) *ff.Command {
	fs := ff.NewFlagSet("list").SetParent(parent)
	var (
		kind  = fs.StringLong("type", "", "only income or expense")
		from  = fs.StringLong("from", "", "start date (YYYY-MM-DD)")
		to    = fs.StringLong("to", "", "end date (YYYY-MM-DD)")
		limit = fs.IntLong("limit", 20, "maximum number of transactions")
		skip  = fs.IntLong("skip", 0, "number of transactions to skip")
	)

	return &ff.Command{
		Name:      "list",
		Usage:     "budget-sync list [FLAGS]",
		ShortHelp: "list transactions",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			q := gateway.TransactionQuery{Skip: *skip, Limit: *limit}
			if *kind != "" {
				k, err := parseKind(*kind)
				if err != nil {
					return err
				}
				q.Kind = k
			}

			now := time.Now()
			var err error
			if q.StartDate, err = parseDateFlag(*from, now); err != nil {
				return err
			}
			if q.EndDate, err = parseDateFlag(*to, now); err != nil {
				return err
			}

			s := store.NewStore(a.client)
			if err := s.FetchTransactions(ctx, q); err != nil {
				return err
			}
			printTransactions(a.stdout, s.Transactions())
			return nil
		},
	}
}

func (a *app) addCommand(parent *ff.FlagSet) *ff.Command {
	fs := ff.NewFlagSet("add").SetParent(parent)
	var (
		kind        = fs.StringLong("type", "expense", "income or expense")
		date        = fs.StringLong("date", "today", "transaction date (YYYY-MM-DD, today, yesterday)")
		description = fs.StringLong("desc", "", "free-text description")
	)

	return &ff.Command{
		Name:      "add",
		Usage:     "budget-sync add [FLAGS] <amount> <category>",
		ShortHelp: "record a transaction",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) < 2 {
				return errors.New("add requires an amount and a category")
			}
			amount, err := parseAmount(args[0])
			if err != nil {
				return err
			}
			k, err := parseKind(*kind)
			if err != nil {
				return err
			}
			d, err := parseDateFlag(*date, time.Now())
			if err != nil {
				return err
			}

			return a.addAndReport(ctx, gateway.NewTransaction{
				Kind:        k,
				Amount:      amount,
				Category:    strings.Join(args[1:], " "),
				Description: *description,
				Date:        d,
				Source:      gateway.SourceManual,
			})
		},
	}
}

// addAndReport creates a transaction through a store and prints the refreshed month
func (a *app) addAndReport(ctx context.Context, data gateway.NewTransaction) error {
	s := store.NewStore(a.client)
	created, err := s.AddTransaction(ctx, data)
	if err != nil {
		return err
	}
	printTransaction(a.stdout, "Added", created)
	printMonthly(a.stdout, s.State().MonthlyStats)
	return nil
}

func (a *app) updateCommand(parent *ff.FlagSet) *ff.Command {
	fs := ff.NewFlagSet("update").SetParent(parent)
	kind := fs.StringLong("type", "", "new type")
	amount := fs.StringLong("amount", "", "new amount")
	category := fs.StringLong("category", "", "new category")
	description := fs.StringLong("desc", "", "new description")
	date := fs.StringLong("date", "", "new date")

	return &ff.Command{
		Name:      "update",
		Usage:     "budget-sync update [FLAGS] <id>",
		ShortHelp: "change fields of a transaction",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return errors.New("update requires exactly one transaction id")
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			f := updateFlags{kind: *kind, amount: *amount, category: *category, description: *description, date: *date}
			patch, err := f.build(time.Now())
			if err != nil {
				return err
			}

			s := store.NewStore(a.client)
			updated, err := s.UpdateTransaction(ctx, id, patch)
			if err != nil {
				return err
			}
			printTransaction(a.stdout, "Updated", updated)
			return nil
		},
	}
}

func (a *app) removeCommand(parent *ff.FlagSet) *ff.Command {
	fs := ff.NewFlagSet("rm").SetParent(parent)

	return &ff.Command{
		Name:      "rm",
		Usage:     "budget-sync rm <id> ...",
		ShortHelp: "delete transactions",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return errors.New("rm requires at least one transaction id")
			}

			s := store.NewStore(a.client)
			var failed []string
			for _, arg := range args {
				id, err := parseID(arg)
				if err == nil {
					err = s.RemoveTransaction(ctx, id)
				}
				if err != nil {
					failed = append(failed, arg)
					fmt.Fprintf(a.stdout, "%s %s: %v\n", warnStyle.Render("Not removed"), arg, err)
					continue
				}
				fmt.Fprintf(a.stdout, "Removed #%d\n", id)
			}

			printMonthly(a.stdout, s.State().MonthlyStats)
			if len(failed) > 0 {
				return fmt.Errorf("could not remove %s", strings.Join(failed, ", "))
			}
			return nil
		},
	}
}
