package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/knowledge-engine/storyrank/internal/api"
	"github.com/knowledge-engine/storyrank/internal/config"
	"github.com/knowledge-engine/storyrank/internal/engine"
	"github.com/knowledge-engine/storyrank/internal/logging"
	"github.com/knowledge-engine/storyrank/internal/search"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "storyrank",
		Short: "Rank Hacker News stories against an interest statement",
		Long: `storyrank fetches the current top Hacker News stories and orders them by
lexical overlap with a free-text description of what you care about.

Configuration comes from defaults, an optional YAML file (--config) and
STORYRANK_* environment variables, e.g. STORYRANK_SERVER_ADDR=:9090.`,
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newRankCmd(opts))
	root.AddCommand(newKeywordsCmd(opts))
	return root
}

func (o *rootOptions) load() (*config.Config, *logrus.Entry, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			logger.Info("Starting storyrank API service")

			eng, err := engine.NewEngine(cfg, logger)
			if err != nil {
				return fmt.Errorf("initialize engine: %w", err)
			}
			server := api.NewServer(eng, logging.Component(logger, "api"))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start(cfg.Server.Addr)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return <-errCh
		},
	}
}

func newRankCmd(opts *rootOptions) *cobra.Command {
	var (
		sortKey      string
		minRelevance int
		limit        int
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "rank <interest statement>",
		Short: "Fetch the current stories once and print them ranked",
		Example: `  storyrank rank "distributed databases, consensus and Rust"
  storyrank rank --sort score --min-relevance 20 "compilers"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			key, err := search.ParseSortKey(sortKey)
			if err != nil {
				return err
			}

			eng, err := engine.NewEngine(cfg, logger)
			if err != nil {
				return fmt.Errorf("initialize engine: %w", err)
			}
			resp, err := eng.RankStories(cmd.Context(), engine.RankRequest{
				Query:        strings.Join(args, " "),
				Sort:         key,
				MinRelevance: minRelevance,
			})
			if err != nil {
				return err
			}

			stories := resp.Stories
			if limit > 0 && len(stories) > limit {
				stories = stories[:limit]
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stories)
			}
			return printStories(cmd, resp.Keywords, stories)
		},
	}
	cmd.Flags().StringVar(&sortKey, "sort", "relevance", "order by relevance, score or date")
	cmd.Flags().IntVar(&minRelevance, "min-relevance", 0, "hide stories below this relevance percentage")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of stories to print (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func printStories(cmd *cobra.Command, keywords []string, stories []engine.RankedStory) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "keywords: %s\n\n", strings.Join(keywords, ", "))

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REL\tSCORE\tTITLE\tMATCHES")
	for _, story := range stories {
		fmt.Fprintf(w, "%d%%\t%d\t%s\t%s\n",
			search.RelevancePercent(story.RelevanceScore),
			story.Score,
			story.Title,
			strings.Join(story.MatchingKeywords, " "),
		)
	}
	return w.Flush()
}

func newKeywordsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keywords <text>",
		Short: "Print the keywords extracted from text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			tok := search.NewTokenizer()
			for _, keyword := range tok.ExtractKeywords(strings.Join(args, " "), cfg.Ranking.KeywordLimit) {
				fmt.Fprintln(cmd.OutOrStdout(), keyword)
			}
			return nil
		},
	}
}
