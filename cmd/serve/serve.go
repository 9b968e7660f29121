package serve

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/radgrid/radreview-go/internal/conf"
	"github.com/radgrid/radreview-go/internal/server"
)

// Command creates the serve subcommand which runs the HTTP API.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the review API server",
		Long:  "Start the HTTP API serving the worklist, ingestion and review endpoints.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.Run(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.WebServer.Port, "port", viper.GetString("webserver.port"), "Port to listen on")
	cmd.Flags().StringVar(&settings.Inference.Provider, "provider", viper.GetString("inference.provider"), "Inference provider (\"mock\" or \"remote\")")
	cmd.Flags().StringVar(&settings.Inference.Endpoint, "endpoint", viper.GetString("inference.endpoint"), "Model server URL for the remote provider")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
