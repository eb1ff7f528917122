package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/budget-sync/internal/gateway"
	"github.com/zombor/budget-sync/internal/journal"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// app holds the root flags and the clients built from them
type app struct {
	apiBase     *string
	journalPath *string
	archivePath *string
	verbose     *bool

	stdout io.Writer
	client *gateway.Client
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	_ = godotenv.Load()

	fs := ff.NewFlagSet("budget-sync")
	a := &app{
		apiBase:     fs.StringLong("api-base", gateway.DefaultBaseURL, "finance API base URL"),
		journalPath: fs.StringLong("journal", "budget-sync.db", "scan journal file path"),
		archivePath: fs.StringLong("archive", "./scans", "directory for archived uploads (empty to disable)"),
		verbose:     fs.BoolLong("verbose", "enable debug logging"),
		stdout:      os.Stdout,
	}

	root := &ff.Command{
		Name:      "budget-sync",
		Usage:     "budget-sync [FLAGS] <SUBCOMMAND> ...",
		ShortHelp: "command-line client for the personal finance API",
		Flags:     fs,
		Subcommands: []*ff.Command{
			a.initCommand(fs),
			a.listCommand(fs),
			a.addCommand(fs),
			a.updateCommand(fs),
			a.removeCommand(fs),
			a.statsCommand(fs),
			a.scanCommand(fs),
			a.voiceCommand(fs),
			a.chatCommand(fs),
			a.aiConfigCommand(fs),
			a.exportCommand(fs),
			a.meCommand(fs),
			a.scansCommand(fs),
			{
				Name:      "version",
				ShortHelp: "print the version",
				Exec: func(ctx context.Context, args []string) error {
					fmt.Fprintln(a.stdout, version)
					return nil
				},
			},
		},
	}

	if err := root.Parse(os.Args[1:], ff.WithEnvVarPrefix("BUDGET_SYNC")); err != nil {
		selected := root.GetSelected()
		if selected == nil {
			selected = root
		}
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(selected))
		if errors.Is(err, ff.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *a.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	a.client = gateway.NewClient(*a.apiBase)
	slog.Debug("Using finance API", "base_url", a.client.BaseURL())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.Run(ctx); err != nil {
		if errors.Is(err, ff.ErrNoExec) {
			fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(root))
			os.Exit(1)
		}
		slog.Error("Command failed", "error", err)
		stop()
		os.Exit(1)
	}
}

// openJournal opens the scan journal and, when configured, the upload archive
func (a *app) openJournal() (*journal.Journal, func(), error) {
	slog.Debug("Opening scan journal", "path", *a.journalPath)
	db, err := journal.NewBoltDB(*a.journalPath)
	if err != nil {
		return nil, nil, err
	}

	var storage journal.Storage
	if *a.archivePath != "" {
		local, err := journal.NewLocalStorage(*a.archivePath)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		storage = local
	}

	return journal.NewJournal(db, storage), func() { db.Close() }, nil
}
