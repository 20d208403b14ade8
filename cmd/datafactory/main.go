package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tigerroll/datafactory/internal/app"
	"github.com/tigerroll/datafactory/pkg/etl/core/config"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "1.0"

func banner() string {
	prompt := fmt.Sprintf("DataFactory Engine Version: %s", version)
	line := strings.Repeat("-", len(prompt))
	return line + "\n" + prompt + "\n" + line
}

func newRootCmd(exitCode *int) *cobra.Command {
	opts := config.LoadOptions{}

	cmd := &cobra.Command{
		Use:   "datafactory",
		Short: "Clean, transform, validate and fix financial risk datasets",
		Long: `DataFactory runs every dataset of the configuration through the cleaning,
transformation, validation, fixing and final cleanup steps and writes the cooked files.`,
		Version:      version,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := strings.ToUpper(opts.LogLevel)
			if level != "DEBUG" && level != "INFO" {
				return fmt.Errorf("invalid log level %q: must be DEBUG or INFO", opts.LogLevel)
			}
			opts.LogLevel = level
			logger.SetLogLevel(level)
			fmt.Fprintln(cmd.OutOrStdout(), banner())

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigChan)
			go func() {
				select {
				case sig := <-sigChan:
					logger.Warnf("Received signal '%v'. Stopping after the current step...", sig)
					cancel()
				case <-ctx.Done():
				}
			}()

			*exitCode = app.RunApplication(ctx, opts)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "config.yaml", "configuration file, relative to the root directory unless absolute")
	cmd.Flags().StringVar(&opts.RootDir, "root", "", "project root directory (default is the working directory)")
	cmd.Flags().StringVar(&opts.LogLevel, "loglevel", "INFO", "log level: DEBUG or INFO")
	cmd.Flags().StringVar(&opts.EnvFilePath, "env-file", os.Getenv("ENV_FILE_PATH"), ".env file to load (default is <root>/.env)")
	return cmd
}

func main() {
	exitCode := app.ExitFailure
	if err := newRootCmd(&exitCode).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(app.ExitFailure)
	}
	os.Exit(exitCode)
}
