package seed

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/radgrid/radreview-go/internal/conf"
	"github.com/radgrid/radreview-go/internal/datastore"
	"github.com/radgrid/radreview-go/internal/inference"
	"github.com/radgrid/radreview-go/internal/ingest"
	"github.com/radgrid/radreview-go/internal/seed"
)

// Command creates the seed subcommand which loads a YAML manifest of
// patients and images through the regular ingestion pipeline.
func Command(settings *conf.Settings) *cobra.Command {
	var manifestPath string
	var concurrency int

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the database from a manifest",
		Long:  "Ingest patients, exams and images from a YAML manifest. Re-running a manifest skips patients already present.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, settings, manifestPath, concurrency)
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", viper.GetString("seed.manifest"), "Path to the seed manifest file")
	cmd.Flags().IntVar(&concurrency, "concurrency", seed.DefaultConcurrency, "Parallel image ingestions")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		fmt.Printf("error binding flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func runSeed(cmd *cobra.Command, settings *conf.Settings, manifestPath string, concurrency int) error {
	if manifestPath == "" {
		return fmt.Errorf("a manifest path is required, use --manifest")
	}

	manifest, err := seed.LoadManifest(manifestPath)
	if err != nil {
		return err
	}

	ds := datastore.New(settings)
	if ds == nil {
		return fmt.Errorf("no database output enabled in configuration")
	}
	if err := ds.Open(); err != nil {
		return fmt.Errorf("opening datastore: %w", err)
	}
	defer func() { _ = ds.Close() }()

	gateway, err := inference.NewGateway(settings)
	if err != nil {
		return fmt.Errorf("initializing inference gateway: %w", err)
	}

	pipeline := ingest.New(ds, gateway, settings, nil)
	seeder := seed.New(ds, pipeline, concurrency)

	baseDir := filepath.Dir(manifestPath)
	if err := seeder.Run(cmd.Context(), manifest, baseDir); err != nil {
		return err
	}

	fmt.Printf("Seeded %d patients from %s\n", len(manifest.Patients), manifestPath)
	return nil
}
