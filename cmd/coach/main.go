package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/park285/cheese-coach/internal/config"
	"github.com/park285/cheese-coach/internal/obslog"
)

var (
	cfg *config.AppConfig

	serverURL string
	playSide  string

	rootCmd = &cobra.Command{
		Use:   "coach",
		Short: "Chess coach with engine suggestions and a navigable game timeline",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := obslog.InitFromEnv(); err != nil {
				return err
			}
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the coach HTTP API",
		RunE:  runServe,
	}

	playCmd = &cobra.Command{
		Use:   "play",
		Short: "Play a game in the terminal",
		Long: `Play against the configured opponent (or both sides by hand) in the terminal.
Without --server the coach runs in-process with the same configuration as serve.`,
		RunE: runPlay,
	}

	probeCmd = &cobra.Command{
		Use:   "probe",
		Short: "Run the engine handshake once and report the result",
		RunE:  runProbe,
	}
)

func init() {
	playCmd.Flags().StringVar(&serverURL, "server", "", "base URL of a running coach server")
	playCmd.Flags().StringVar(&playSide, "side", "", "pick a side up front (white or black)")
	rootCmd.AddCommand(serveCmd, playCmd, probeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Printf("coach: %v", err)
		os.Exit(1)
	}
}
