// Package cli implements genomectl, the operator command line for the genome
// search service: inspecting and searching local FASTA files, and preparing
// or loading the genome database.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/sequence"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/logger"
)

// Version is reported by `genomectl --version`.
var Version = "1.0.0"

type options struct {
	configPath string
}

// NewRootCommand builds the genomectl command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "genomectl",
		Short:         "Inspect FASTA files and manage the genome search database",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "configs/development.yaml", "path to config file")

	root.AddCommand(
		newParseCommand(),
		newSearchCommand(),
		newSliceCommand(),
		newBenchCommand(),
		newMigrateCommand(opts),
		newImportCommand(opts),
	)
	return root
}

// Execute runs genomectl and exits non-zero on error. It is called by
// main.main.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(root.ErrOrStderr(), "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config and installs the logger for commands that talk
// to the database.
func (o *options) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

func readDocument(path string) (*sequence.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	doc, err := sequence.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
