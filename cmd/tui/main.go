package main

import (
	"fmt"
	"os"
	"time"

	"citesearch/config"
	"citesearch/providers/citesearch"
	"citesearch/session"
	"citesearch/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	apiBaseURL    string
	timeout       time.Duration
	overlapPolicy string
	debugLog      string
)

var rootCmd = &cobra.Command{
	Use:   "citesearch-tui",
	Short: "Find PubMed citations that support your writing, in the terminal",
	Long: `citesearch-tui sends a paragraph to the CiteSearch backend and lists matching
journal articles with ready-to-copy reference list and in-text citations.

Configuration is read from the environment (.env is honoured); flags override it.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&apiBaseURL, "api-base-url", "", "base URL of the citation backend (overrides API_BASE_URL)")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 0, "upper bound for one search (overrides CITATION_TIMEOUT)")
	rootCmd.Flags().StringVar(&overlapPolicy, "overlap-policy", "", "what a new search does while one is running: cancel or reject")
	rootCmd.Flags().StringVar(&debugLog, "debug-log", "", "write debug logs to this file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	if apiBaseURL != "" {
		os.Setenv("API_BASE_URL", apiBaseURL)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("timeout") {
		cfg.CitationTimeout = timeout
	}
	if overlapPolicy != "" {
		cfg.SearchOverlapPolicy = overlapPolicy
	}
	policy, err := session.ParseOverlapPolicy(cfg.SearchOverlapPolicy)
	if err != nil {
		return err
	}

	logger, err := newLogger(debugLog)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	fetcher := citesearch.NewFetcher(cfg, logger)
	bridge := tui.NewBridge()
	sess := session.New(fetcher, session.Options{
		RotateInterval: cfg.RotateInterval,
		CopyReset:      cfg.CopyReset,
		Policy:         policy,
		Logger:         logger,
		Health:         fetcher,
		OnChange:       bridge.OnChange,
	})
	defer sess.Close()
	defer bridge.Close()
	sess.Mount()

	p := tea.NewProgram(tui.New(sess, bridge), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

// newLogger: Ausgaben aufs Terminal würden die Oberfläche zerstören, daher nur in eine Datei.
func newLogger(path string) (*zap.Logger, error) {
	if path == "" {
		return zap.NewNop(), nil
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	return cfg.Build()
}
