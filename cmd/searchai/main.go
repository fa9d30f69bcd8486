// Command searchai searches the web for a query, summarizes what it finds
// and answers follow-up questions about stored searches.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/mng48301/searchai/internal/config"
	"github.com/mng48301/searchai/internal/logging"
)

type rootOptions struct {
	envFiles []string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "searchai",
		Short:         "Search, scrape and summarize the web",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil, "dotenv files to load (default .env)")

	root.AddCommand(
		newServeCmd(opts),
		newSearchCmd(opts),
		newAskCmd(opts),
		newResultsCmd(opts),
		newSourceCmd(opts),
		newDeleteCmd(opts),
	)
	return root
}

func (o *rootOptions) load() (config.Config, error) {
	cfg, err := config.Load(o.envFiles...)
	if err != nil {
		return cfg, err
	}
	logging.Init(cfg.Logging.Format, cfg.Logging.Level)
	return cfg, nil
}

func main() {
	ctx := context.Background()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logging.New(os.Stderr, "text", "error").Error("fatal error", "err", err)
		os.Exit(1)
	}
}
