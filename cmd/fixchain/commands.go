// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/fixchain/fixchain/pkg/logging"
)

// --- Global Command Variables ---
var (
	config     *Config
	configPath string
	logLevel   string

	maxRounds  int
	jsonOutput bool
	bugStatus  string

	rootCmd = &cobra.Command{
		Use:   "fixchain",
		Short: "Iterative static-analysis remediation for code artifacts",
		Long: `fixchain scans a file or directory with a battery of analyzers,
proposes and applies one patch per finding per round, verifies each
round with a fresh scan, and rolls back any round that makes the
artifact worse. Sessions stop when the artifact scans clean, the
round cap is hit, or a regression forces an abort.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			explicit := cmd.Flags().Changed("config") || cmd.Root().PersistentFlags().Changed("config")
			cfg, err := loadConfig(configPath, explicit)
			if err != nil {
				log.Fatalf("Error loading config: %v", err)
			}
			if err := cfg.validate(); err != nil {
				log.Fatalf("Invalid config: %v", err)
			}
			config = cfg

			level := cfg.Log.Level
			if logLevel != "" {
				level = logLevel
			}
			if _, err := logging.Setup(logging.Config{
				Level:   logging.ParseLevel(level),
				LogDir:  cfg.Log.Dir,
				Service: "fixchain",
				JSON:    cfg.Log.JSON,
				Quiet:   cfg.Log.Quiet || jsonOutput,
			}); err != nil {
				log.Fatalf("Error configuring logging: %v", err)
			}
		},
	}

	runCmd = &cobra.Command{
		Use:   "run [artifact]",
		Short: "Run a remediation session against a file or directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runSession, // Defined in cmd_run.go
	}

	bugsCmd = &cobra.Command{
		Use:   "bugs [artifact]",
		Short: "List bug records from past sessions for an artifact",
		Args:  cobra.ExactArgs(1),
		RunE:  runBugs, // Defined in cmd_bugs.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "fixchain.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level (debug|info|warn|error)")

	runCmd.Flags().IntVar(&maxRounds, "max-rounds", 0, "Override the configured round cap")
	runCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the session result as JSON on stdout")

	bugsCmd.Flags().StringVar(&bugStatus, "status", "", "Filter records by status (detected|fix_attempted|fixed|verified|reintroduced|rejected)")
	bugsCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print records as JSON on stdout")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(bugsCmd)
}
