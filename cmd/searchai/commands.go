package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mng48301/searchai/internal/answer"
	"github.com/mng48301/searchai/internal/report"
	"github.com/mng48301/searchai/internal/storage"
)


// withApp loads config, wires the app and runs fn against it.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(a *app) error) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	a, err := setup(cmd.Context(), cfg, slog.Default())
	if err != nil {
		return err
	}
	return errors.Join(fn(a), a.Close())
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Run a search job and print its summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				out, err := a.pipeline.Run(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("job %s: %w", out.JobID, err)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Job:     %s\n", out.JobID)
				for _, s := range out.Sites {
					fmt.Fprintf(w, "Source:  %s\n", s)
				}
				fmt.Fprintf(w, "\n%s\n", out.Summary)
				return nil
			})
		},
	}
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ask <query> <question>",
		Short: "Ask a follow-up question about a stored search",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				resp, err := a.answers.Ask(cmd.Context(), args[0], args[1])
				switch {
				case errors.Is(err, storage.ErrNotFound):
					return fmt.Errorf("no stored search for %q", args[0])
				case errors.Is(err, answer.ErrNoContent):
					resp = &answer.Response{Format: answer.FormatText, Answer: answer.NoContentMessage}
				case err != nil:
					return err
				}
				if asJSON || resp.Format != answer.FormatText {
					return printJSON(cmd.OutOrStdout(), resp)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), resp.Answer)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full response as JSON")
	return cmd
}

func newResultsCmd(opts *rootOptions) *cobra.Command {
	var (
		format string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Summarize stored searches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app) error {
				docs, err := a.store.Query(cmd.Context(), storage.Filter{Limit: limit})
				if err != nil {
					return err
				}
				summary := report.GenerateSummary(docs)
				w := cmd.OutOrStdout()
				switch format {
				case "json":
					return report.WriteJSON(w, summary)
				case "html":
					return report.WriteHTML(w, summary)
				case "text":
					return report.WriteText(w, summary)
				}
				return fmt.Errorf("unknown format %q", format)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json or html")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of searches")
	return cmd
}

func newSourceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "source <url>",
		Short: "Print the stored content of a scraped page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				res, err := storage.FindSource(cmd.Context(), a.store, args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), res.Content)
				return err
			})
		},
	}
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <query>",
		Short: "Delete every stored search for a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				n, err := a.store.Delete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if n == 0 {
					return fmt.Errorf("no stored search for %q", args[0])
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d search(es)\n", n)
				return err
			})
		},
	}
}
