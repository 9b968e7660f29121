package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/radgrid/radreview-go/cmd/seed"
	"github.com/radgrid/radreview-go/cmd/serve"
	"github.com/radgrid/radreview-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "radreview",
		Short: "RadReview CLI",
		Long:  "Chest X-ray triage service: model predictions reconciled with radiologist review.",
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
	}

	subcommands := []*cobra.Command{
		serve.Command(settings),
		seed.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().Float64VarP(&settings.Inference.Threshold, "threshold", "t", viper.GetFloat64("inference.threshold"), "Probability threshold for positive predictions, between 0.0 and 1.0")
	rootCmd.PersistentFlags().StringVar(&settings.Inference.ModelVersion, "modelversion", viper.GetString("inference.modelversion"), "Model version name predictions are stored under")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
