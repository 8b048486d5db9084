package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mindcamp/mindcamp/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initCmd)
}

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mindcamp API server",
	Long:  `Start the progress API at localhost:7410 (see [api] in config.toml).`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	d, err := daemon.New(context.Background())
	if err != nil {
		return err
	}
	defer d.Close()

	// Override config from flags
	if serveHost != "" {
		d.Config.API.Host = serveHost
	}
	if servePort > 0 {
		d.Config.API.Port = servePort
	}

	return d.Serve(context.Background())
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config.toml to $MINDCAMP_HOME",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := daemon.SaveConfig(daemon.DefaultConfig()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", filepath.Join(daemon.Home(), "config.toml"))
		return nil
	},
}
