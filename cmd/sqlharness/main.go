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
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomoncle/sqlharness/utils"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// CLI flags
var (
	configPath  string
	environment string
	pipeline    bool
	envDir      string
	verbosity   int
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sqlharness",
		Short: "sqlharness - database assertions for end-to-end suites",
		Long: `sqlharness loads config.yaml and the <env>.env file of the selected environment,
connects to the configured database with retry and runs the SQL scripts kept
under <SQL_SCRIPTS_FOLDER>/<env>/.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(verbosity)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to the YAML settings file")
	rootCmd.PersistentFlags().StringVarP(&environment, "env", "e", "", "Target environment (overrides ENVIRONMENT in settings, default rc)")
	rootCmd.PersistentFlags().BoolVar(&pipeline, "pipeline", false, "Use the process environment instead of <env>.env")
	rootCmd.PersistentFlags().StringVar(&envDir, "env-dir", "", "Directory holding the <env>.env files (default from settings or .)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")

	rootCmd.AddCommand(newPingCmd(), newRunCmd(), newScriptsCmd(), newSeedCmd())

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sqlharness %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})
	return rootCmd
}

func setupLogging(verbosity int) {
	switch {
	case verbosity >= 2:
		utils.ConfigureLogLevel("trace")
	case verbosity == 1:
		utils.ConfigureLogLevel("debug")
	}
}
