package main

import (
	"context"
	"fmt"

	"github.com/peterbourgon/ff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/budget-sync/internal/gateway"
	"github.com/zombor/budget-sync/internal/store"
)

func (a *app) initCommand(parent *ff.FlagSet) *ff.Command {
	fs := ff.NewFlagSet("init").SetParent(parent)
	recent := fs.IntLong("recent", store.DefaultRecent, "number of recent transactions to show")

	return &ff.Command{
		Name:      "init",
		Usage:     "budget-sync init [FLAGS]",
		ShortHelp: "load and show the dashboard",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			s := store.NewStore(a.client)
			users := store.NewUserStore(a.client)

			// The user panel never holds up the dashboard.
			var g errgroup.Group
			g.Go(func() error { return users.Init(ctx) })
			s.Init(ctx)
			_ = g.Wait()

			st := s.State()
			if user := users.User(); user != nil {
				fmt.Fprintf(a.stdout, "%s\n\n", titleStyle.Render("Hello, "+displayName(user)))
			}
			if st.LastError != "" {
				fmt.Fprintf(a.stdout, "%s %s\n\n", warnStyle.Render("Transactions unavailable:"), st.LastError)
			}

			printMonthly(a.stdout, st.MonthlyStats)
			fmt.Fprintln(a.stdout)
			printCategories(a.stdout, st.CategoryStats)
			fmt.Fprintln(a.stdout)
			printTrend(a.stdout, st.Trend)
			fmt.Fprintln(a.stdout)
			fmt.Fprintln(a.stdout, titleStyle.Render("Recent"))
			printTransactions(a.stdout, s.Recent(*recent))
			return nil
		},
	}
}

func (a *app) statsCommand(parent *ff.FlagSet) *ff.Command {
	fs := ff.NewFlagSet("stats").SetParent(parent)
	var (
		year  = fs.IntLong("year", 0, "year (default current)")
		month = fs.IntLong("month", 0, "month 1-12 (default current)")
		kind  = fs.StringLong("type", "expense", "category breakdown for income or expense")
		days  = fs.IntLong("days", store.DefaultTrendDays, "trend window in days")
	)

	return &ff.Command{
		Name:      "stats",
		Usage:     "budget-sync stats [FLAGS]",
		ShortHelp: "show monthly, category and trend statistics",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if *month < 0 || *month > 12 {
				return fmt.Errorf("month %d out of range", *month)
			}
			k, err := parseKind(*kind)
			if err != nil {
				return err
			}
			period := gateway.Period{Year: *year, Month: *month}

			s := store.NewStore(a.client)
			var g errgroup.Group
			g.Go(func() error { return s.FetchMonthlyStats(ctx, period) })
			g.Go(func() error { return s.FetchCategoryStats(ctx, k, period) })
			g.Go(func() error { return s.FetchTrendData(ctx, *days) })
			if err := g.Wait(); err != nil {
				return err
			}

			st := s.State()
			printMonthly(a.stdout, st.MonthlyStats)
			fmt.Fprintln(a.stdout)
			printCategories(a.stdout, st.CategoryStats)
			fmt.Fprintln(a.stdout)
			printTrend(a.stdout, st.Trend)
			return nil
		},
	}
}

func (a *app) meCommand(parent *ff.FlagSet) *ff.Command {
	fs := ff.NewFlagSet("me").SetParent(parent)

	return &ff.Command{
		Name:      "me",
		Usage:     "budget-sync me",
		ShortHelp: "show the current user and lifetime totals",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			users := store.NewUserStore(a.client)
			if err := users.Init(ctx); err != nil {
				return err
			}

			user := users.User()
			if user == nil {
				return fmt.Errorf("current user unavailable from %s", a.client.BaseURL())
			}
			stats := users.Stats()

			fmt.Fprintln(a.stdout, titleStyle.Render(displayName(user)))
			tw := newTable(a.stdout)
			defer flush(tw)
			fmt.Fprintf(tw, "Username\t%s\n", user.Username)
			fmt.Fprintf(tw, "Days tracked\t%d\n", stats.Days)
			fmt.Fprintf(tw, "Records\t%d\n", stats.TotalRecords)
			fmt.Fprintf(tw, "Total income\t%s\n", incomeStyle.Render(money(stats.TotalIncome)))
			fmt.Fprintf(tw, "Total expense\t%s\n", expenseStyle.Render(money(stats.TotalExpense)))
			return nil
		},
	}
}

func displayName(u *gateway.User) string {
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.Username
}
