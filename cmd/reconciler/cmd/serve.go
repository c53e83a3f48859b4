package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"insurance-coverage-reconciler/cmd/reconciler/config"
	"insurance-coverage-reconciler/internal/server"
	"insurance-coverage-reconciler/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the extraction and matching API over HTTP",
	Long: `Serve starts the HTTP API:

  GET  /health                  liveness
  POST /api/parse-pdf           pdf_file -> extracted fields
  POST /api/match-with-summary  pdf_files + excel_file -> match results (JSON)
  POST /api/match               pdf_files + excel_file -> filled workbook

The PORT environment variable is honoured when --port is not given.

Examples:
  reconciler serve
  reconciler serve --port 8080 --allowed-origins https://app.example.com
  reconciler serve --archive=false --log-format json`,

	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd.Flags(), map[string]string{
			"host":            "server.host",
			"port":            "server.port",
			"max-upload-mb":   "server.max_upload_mb",
			"allowed-origins": "server.allowed_origins",
			"sheet":           "template.sheet_name",
			"first-column":    "template.first_amount_column",
			"rules":           "matching.rules_file",
			"concurrency":     "reconciler.max_concurrent_documents",
			"archive":         "archive.enabled",
			"archive-path":    "archive.path",
		})
	},
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "listen host")
	serveCmd.Flags().Int("port", 10000, "listen port")
	serveCmd.Flags().Int64("max-upload-mb", 50, "maximum request body size in MB")
	serveCmd.Flags().StringSlice("allowed-origins", []string{"*"}, "CORS origins")
	serveCmd.Flags().String("sheet", "", "worksheet to fill (default: active sheet)")
	serveCmd.Flags().Int("first-column", 4, "column of the first document (4 = D)")
	serveCmd.Flags().String("rules", "", "YAML rule table laid over the built-in rules")
	serveCmd.Flags().Int("concurrency", 4, "documents extracted in parallel per request")
	serveCmd.Flags().Bool("archive", true, "record match requests in the archive")
	serveCmd.Flags().String("archive-path", "coverage-runs.db", "archive database path")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.GetGlobalLogger()

	port := viper.GetInt("server.port")
	if !cmd.Flags().Changed("port") && !viper.IsSet("server.port") {
		if env := os.Getenv("PORT"); env != "" {
			if _, err := fmt.Sscanf(env, "%d", &port); err != nil {
				return fmt.Errorf("invalid PORT environment variable %q: %w", env, err)
			}
		}
	}

	serverConfig, err := config.CreateServerConfig(
		viper.GetString("server.host"),
		port,
		viper.GetInt64("server.max_upload_mb"),
		viper.GetStringSlice("server.allowed_origins"),
	)
	if err != nil {
		return fmt.Errorf("failed to create server config: %w", err)
	}

	templateConfig, err := config.CreateTemplateConfig(
		viper.GetString("template.sheet_name"),
		viper.GetInt("template.first_amount_column"),
	)
	if err != nil {
		return fmt.Errorf("failed to create template config: %w", err)
	}

	service, err := newService(false)
	if err != nil {
		return err
	}

	opts := []server.Option{
		server.WithLogger(log),
		server.WithTemplateConfig(templateConfig),
	}
	store, err := openArchive()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		opts = append(opts, server.WithArchive(store))
	}

	srv, err := server.New(service, serverConfig, opts...)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Listening on %s\n", serverConfig.Addr())
	return srv.ListenAndServe(ctx)
}
