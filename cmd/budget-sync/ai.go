package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/schollz/progressbar/v3"

	"github.com/zombor/budget-sync/internal/gateway"
	"github.com/zombor/budget-sync/internal/scanning"
)

func (a *app) scanCommand(parent *ff.FlagSet) *ff.Command {
	fs := ff.NewFlagSet("scan").SetParent(parent)
	var (
		retries = fs.IntLong("retries", scanning.DefaultMaxRetries, "retries after a transient upload failure")
		save    = fs.BoolLong("save", "record each scanned receipt as an expense")
	)

	return &ff.Command{
		Name:      "scan",
		Usage:     "budget-sync scan [FLAGS] <image> ...",
		ShortHelp: "extract receipts from images or PDFs",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return errors.New("scan requires at least one file")
			}

			j, closeJournal, err := a.openJournal()
			if err != nil {
				return err
			}
			defer closeJournal()

			var scanner scanning.Scanner = scanning.NewPipelineWithDeps(a.client, scanning.NewNormalizer(), scanning.NewUploader(*retries), j)

			var bar *progressbar.ProgressBar
			if len(args) > 1 {
				bar = progressbar.NewOptions(len(args),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionShowCount(),
					progressbar.OptionSetWidth(40),
					progressbar.OptionSetDescription("Scanning receipts"),
				)
			}

			var failed int
			for _, path := range args {
				if err := ctx.Err(); err != nil {
					return err
				}

				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading %s: %w", path, err)
				}

				prior, err := j.PriorScans(scanning.Digest(data))
				if err != nil {
					slog.Warn("Could not check scan journal", "error", err)
				} else if len(prior) > 0 {
					fmt.Fprintf(a.stdout, "%s %s was already scanned %d time(s), last %s\n",
						warnStyle.Render("Note:"), path, len(prior), prior[0].CreatedAt.Local().Format(time.DateTime))
				}

				receipt, err := scanner.ScanReceipt(ctx, filepath.Base(path), data, mime.TypeByExtension(filepath.Ext(path)))
				if bar != nil {
					_ = bar.Add(1)
				}
				if err != nil {
					failed++
					fmt.Fprintf(a.stdout, "%s %s: %v\n", warnStyle.Render("Scan failed"), path, err)
					continue
				}

				printReceipt(a.stdout, path, receipt)
				if *save {
					if err := a.addAndReport(ctx, draftFromReceipt(receipt, time.Now())); err != nil {
						return fmt.Errorf("saving %s: %w", path, err)
					}
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d scans failed", failed, len(args))
			}
			return nil
		},
	}
}

func (a *app) voiceCommand(parent *ff.FlagSet) *ff.Command {
	fs := ff.NewFlagSet("voice").SetParent(parent)
	save := fs.BoolLong("save", "record the parsed transaction")

	return &ff.Command{
		Name:      "voice",
		Usage:     "budget-sync voice [FLAGS] <sentence>",
		ShortHelp: "parse a spoken sentence into a transaction",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				return errors.New("voice requires a sentence")
			}

			parsed, err := a.client.ParseVoice(ctx, text)
			if err != nil {
				return fmt.Errorf("parsing voice input: %w", err)
			}

			draft := draftFromVoice(parsed, time.Now())
			fmt.Fprintf(a.stdout, "%s %s %s", titleStyle.Render("Parsed:"), signedAmount(draft.Kind, draft.Amount), draft.Category)
			if draft.Description != "" {
				fmt.Fprintf(a.stdout, " (%s)", draft.Description)
			}
			fmt.Fprintln(a.stdout)

			if !*save {
				return nil
			}
			return a.addAndReport(ctx, draft)
		},
	}
}

func (a *app) chatCommand(parent *ff.FlagSet) *ff.Command {
	fs := ff.NewFlagSet("chat").SetParent(parent)

	return &ff.Command{
		Name:      "chat",
		Usage:     "budget-sync chat [<question>]",
		ShortHelp: "ask the finance assistant; interactive without a question",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				reply, err := a.client.Chat(ctx, strings.Join(args, " "), nil)
				if err != nil {
					return fmt.Errorf("asking assistant: %w", err)
				}
				printReply(a, reply)
				return nil
			}

			var history []gateway.ChatMessage
			in := bufio.NewScanner(os.Stdin)
			for {
				fmt.Fprint(a.stdout, headerStyle.Render("> "))
				if !in.Scan() {
					return in.Err()
				}
				query := strings.TrimSpace(in.Text())
				if query == "" {
					continue
				}
				if query == "exit" || query == "quit" {
					return nil
				}

				reply, err := a.client.Chat(ctx, query, history)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					fmt.Fprintf(a.stdout, "%s %v\n", warnStyle.Render("Assistant unavailable:"), err)
					continue
				}
				printReply(a, reply)
				history = append(history,
					gateway.ChatMessage{Role: "user", Content: query},
					gateway.ChatMessage{Role: "assistant", Content: reply.Reply},
				)
			}
		},
	}
}

func printReply(a *app, reply *gateway.ChatReply) {
	fmt.Fprintln(a.stdout, reply.Reply)
	if !reply.AIPowered {
		fmt.Fprintln(a.stdout, mutedStyle.Render("(rule-based answer)"))
	}
}

func (a *app) aiConfigCommand(parent *ff.FlagSet) *ff.Command {
	fs := ff.NewFlagSet("ai-config").SetParent(parent)

	return &ff.Command{
		Name:      "ai-config",
		Usage:     "budget-sync ai-config",
		ShortHelp: "show how the AI service is configured",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			cfg, err := a.client.AIConfig(ctx)
			if err != nil {
				return fmt.Errorf("fetching AI config: %w", err)
			}

			tw := newTable(a.stdout)
			defer flush(tw)
			fmt.Fprintf(tw, "Configured\t%t\n", cfg.Configured)
			fmt.Fprintf(tw, "API base\t%s\n", cfg.APIBase)
			fmt.Fprintf(tw, "Model\t%s\n", cfg.Model)
			fmt.Fprintf(tw, "Vision model\t%s\n", cfg.VisionModel)
			fmt.Fprintf(tw, "Ollama\t%t (available: %t)\n", cfg.UseOllama, cfg.OllamaAvailable)
			return nil
		},
	}
}
