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
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tomoncle/sqlharness"
)

func openHarness(cmd *cobra.Command, skipConnect bool) (*sqlharness.Harness, error) {
	h, err := sqlharness.New(cmd.Context(), sqlharness.Options{
		ConfigPath:  configPath,
		Environment: environment,
		Pipeline:    pipeline,
		EnvDir:      envDir,
		SkipConnect: skipConnect,
	})
	if err != nil {
		return nil, err
	}
	// -v beats LOG_LEVEL from the settings file
	setupLogging(verbosity)
	return h, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Connect to the environment's database and report its health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openHarness(cmd, false)
			if err != nil {
				return err
			}
			defer h.Close()

			status := h.DB.HealthCheck(cmd.Context())
			if err := writeJSON(cmd.OutOrStdout(), status); err != nil {
				return err
			}
			if !status.Healthy {
				return fmt.Errorf("database is not healthy: %s", status.LastError)
			}
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	var values []string
	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Run a script from the environment's folder and print the result as JSON",
		Long: `Run executes <SQL_SCRIPTS_FOLDER>/<env>/<script>. Each --value replaces the
next $$ placeholder in the script, in order.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openHarness(cmd, false)
			if err != nil {
				return err
			}
			defer h.Close()

			res, err := h.Run(cmd.Context(), args[0], values...)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringArrayVar(&values, "value", nil, "Placeholder value, repeat for each $$ in the script")
	return cmd
}

func newScriptsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scripts",
		Short: "List the scripts available to the environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openHarness(cmd, true)
			if err != nil {
				return err
			}
			files, err := h.Scripts()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "ORDER\tNAME\tMODIFIED\n")
			for _, f := range files {
				order := "-"
				if f.Ordered() {
					order = fmt.Sprintf("%02d", f.Order)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", order, f.Name, f.ModTime.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Run the common and environment scripts in NN_ order, one transaction per file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openHarness(cmd, false)
			if err != nil {
				return err
			}
			defer h.Close()

			results, err := h.DB.SeedEnvironment(cmd.Context(), h.Environment)
			if werr := writeJSON(cmd.OutOrStdout(), results); werr != nil && err == nil {
				err = werr
			}
			return err
		},
	}
}
