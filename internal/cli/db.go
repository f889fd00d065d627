package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/analytics/snapshot"
	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/genome/service"
	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/genome/store"
	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/genome/validator"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/postgres"
)

func newMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the genome and analytics snapshot tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			db, err := postgres.New(ctx, cfg.Postgres)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := store.New(db).EnsureSchema(ctx); err != nil {
				return err
			}
			if err := snapshot.NewStore(db).EnsureSchema(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready on %s/%s\n", cfg.Postgres.Host, cfg.Postgres.Database)
			return nil
		},
	}
}

func newImportCommand(opts *options) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Validate a FASTA file and store it as a new genome",
		Long: `Store a FASTA file directly in the genome database, applying the same
validation as an HTTP upload. When Kafka is enabled the upload event is
published so running API instances drop stale cross-genome results.`,
		Example: "  genomectl import ecoli.fa\n  genomectl import ./assemblies/v2.fa --name ecoli-v2.fa",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			body, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			if name == "" {
				name = filepath.Base(args[0])
			}

			ctx := cmd.Context()
			db, err := postgres.New(ctx, cfg.Postgres)
			if err != nil {
				return err
			}
			defer db.Close()

			deps := service.Deps{Store: store.New(db)}
			if cfg.Kafka.Enabled {
				producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.GenomeUploaded)
				defer producer.Close()
				deps.Events = producer
			}
			svc := service.New(service.Config{
				Limits: validator.Limits{
					MaxFileNameLength: cfg.Genome.MaxFileNameLength,
					MaxBodyBytes:      cfg.Genome.MaxUploadBytes,
				},
			}, deps)

			resp, err := svc.Upload(ctx, name, string(body))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s as genome %d\n", name, resp.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "file name to store (default: base name of <file>)")
	return cmd
}
