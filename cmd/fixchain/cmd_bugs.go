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
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fixchain/fixchain/services/fixchain/ledger"
)

// runBugs lists durable bug records for an artifact, optionally
// filtered by status.
func runBugs(cmd *cobra.Command, args []string) error {
	artifact := args[0]

	if config.Ledger.Path == "" {
		return fmt.Errorf("no ledger path configured; set ledger.path in %s", configPath)
	}

	store, err := ledger.OpenStore(ledger.DefaultStoreConfig(config.Ledger.Path))
	if err != nil {
		return fmt.Errorf("opening bug record store: %w", err)
	}
	defer store.Close()

	records, err := store.ListByArtifact(artifact, ledger.Status(bugStatus))
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Println("No bug records found.")
		return nil
	}

	fmt.Printf("%-12s %-14s %-8s %-6s %s\n", "BUG", "STATUS", "SEVERITY", "ROUND", "LOCATION")
	for _, rec := range records {
		fmt.Printf("%-12s %-14s %-8s %-6d %s\n",
			rec.BugID, rec.Status, rec.Severity,
			rec.FirstDetectedRound, rec.SourceLocation.String())
	}
	return nil
}
