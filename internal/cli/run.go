package cli

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll gas prices until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Refresh once and print the current gas snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Status(cmd.Context())
	},
}

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll gas prices and expose the dashboard JSON API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		if serveListen != "" {
			a.Config.Server.Listen = serveListen
		}
		return a.Serve(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (defaults to server.listen)")
}
