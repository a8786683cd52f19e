/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tomoncle/prism/database"
	"github.com/tomoncle/prism/utils"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitConfigError = 2
)

// CLI flags
var (
	configFile string
	envFiles   []string
	verbosity  int
	logFormat  string
	logDir     string
	seedEnv    string
	seedPath   string
)

var log = utils.NewLogger("PRISMDB")

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout))
}

func execute(args []string, out io.Writer) int {
	rootCmd := newRootCmd(out)
	rootCmd.SetArgs(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	if database.IsConfigurationError(err) {
		log.Error(err.Error())
		return exitConfigError
	}
	log.WithError(err).Error("Command failed")
	return exitFailure
}

func newRootCmd(out io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "prismdb",
		Short:         "Prism database bootstrap tool",
		Long:          `prismdb validates DATABASE_URL, opens the Prism database handle and runs migrations and seed data against it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(cmd)
		},
	}
	rootCmd.SetOut(out)

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML tuning file (or set "+database.EnvConfigFile+" env var)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", database.DefaultEnvFiles, "Env files to load before reading DATABASE_URL")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json (default from CONSOLE_LOG_FORMAT)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Also write rolling log files to this directory")

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Run SQL seed files",
		RunE:  runSeed,
	}
	seedCmd.Flags().StringVar(&seedEnv, "env", "", "Seed environment directory (default from DB_SEED_ENV)")
	seedCmd.Flags().StringVar(&seedPath, "path", "", "SQL root directory (default from DB_SEED_PATH)")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "check",
			Short: "Validate configuration and ping the database once",
			RunE:  runCheck,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply pending migrations",
			RunE:  runMigrate,
		},
		seedCmd,
		&cobra.Command{
			Use:   "health",
			Short: "Print health status and pool statistics as JSON",
			RunE:  runHealth,
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "prismdb %s (commit: %s, built: %s)\n", version, commit, date)
			},
		},
	)
	return rootCmd
}

// setupLogging keeps logs on stderr; stdout carries command output only.
func setupLogging(cmd *cobra.Command) {
	utils.SetConsoleOutput(cmd.ErrOrStderr())
	if logFormat != "" {
		utils.ConfigureConsoleLogFormat(logFormat)
	}
	if logDir != "" {
		utils.ConfigureFileLog(logDir, -1)
	}
	switch {
	case verbosity >= 2:
		utils.ConfigureLogLevel(logrus.TraceLevel.String())
	case verbosity == 1:
		utils.ConfigureLogLevel(logrus.DebugLevel.String())
	}
}

func loadConfig(adjust func(*database.Config)) (*database.Config, error) {
	opts := []database.LoadOption{database.WithEnvFiles(envFiles...)}
	if configFile != "" {
		opts = append(opts, database.WithConfigFile(configFile))
	}
	cfg, err := database.LoadConfig(opts...)
	if err != nil {
		return nil, err
	}
	if adjust != nil {
		adjust(cfg)
	}
	return cfg, nil
}

// bootstrap returns a manager over a fresh provider. Nothing is dialed yet.
func bootstrap(adjust func(*database.Config)) (database.AbstractDatabaseManager, error) {
	cfg, err := loadConfig(adjust)
	if err != nil {
		return nil, err
	}
	return database.NewDatabaseManager(database.NewProvider(cfg)), nil
}

// runCheck runs the same startup sequence as an application, including
// migrations when DB_MIGRATE_ON_STARTUP is set.
func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	provider, manager, err := database.Initialize(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer manager.Disconnect()

	h, err := provider.Handle()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ok: %s database reachable\n", h.Dialect())
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	manager, err := bootstrap(nil)
	if err != nil {
		return err
	}
	defer manager.Disconnect()

	if err := manager.Connect(cmd.Context()); err != nil {
		return err
	}
	return manager.RunMigrations(cmd.Context())
}

func runSeed(cmd *cobra.Command, args []string) error {
	manager, err := bootstrap(func(cfg *database.Config) {
		if seedEnv != "" {
			cfg.DataInitConfig.Environment = seedEnv
		}
		if seedPath != "" {
			cfg.DataInitConfig.Filepath = seedPath
		}
	})
	if err != nil {
		return err
	}
	defer manager.Disconnect()

	if err := manager.Connect(cmd.Context()); err != nil {
		return err
	}
	return manager.InitData(cmd.Context())
}

func runHealth(cmd *cobra.Command, args []string) error {
	manager, err := bootstrap(nil)
	if err != nil {
		return err
	}
	defer manager.Disconnect()

	report := struct {
		Health *database.HealthStatus `json:"health"`
		Stats  *database.DBStats      `json:"stats"`
	}{
		Health: manager.HealthCheck(cmd.Context()),
		Stats:  manager.GetStats(),
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if !report.Health.Healthy {
		return fmt.Errorf("database unhealthy: %s", report.Health.LastError)
	}
	return nil
}
