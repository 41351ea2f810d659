// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// Patch is one candidate remediation for a single finding, expressed as a
// unified diff against one file of the artifact.
//
// Thread Safety: Immutable after creation.
type Patch struct {
	// BugKey is the structural key of the finding this patch targets.
	BugKey string `json:"bug_key"`

	// FilePath is the file the diff applies to, relative to the artifact root.
	FilePath string `json:"file_path"`

	// Diff is the unified diff body.
	Diff string `json:"diff"`

	// Rationale is the strategy's explanation of the fix. It becomes the
	// content of the reasoning entry persisted for this attempt.
	Rationale string `json:"rationale"`

	// Confidence is the strategy's confidence in [0,1], when reported.
	Confidence float64 `json:"confidence,omitempty"`
}

// ParsePatch validates and normalizes a unified diff into a Patch.
//
// Description:
//
//	Parses the diff with go-diff to reject malformed input before it ever
//	reaches the filesystem. The target path is taken from the diff's new
//	file name when filePath is empty.
//
// Inputs:
//
//	bugKey - Structural key of the finding being fixed.
//	filePath - Target file path; may be empty if the diff names it.
//	unified - The unified diff text.
//	rationale - Free-text explanation of the fix.
//
// Outputs:
//
//	*Patch - The validated patch.
//	error - Non-nil if the diff is empty or unparseable.
func ParsePatch(bugKey, filePath, unified, rationale string) (*Patch, error) {
	if strings.TrimSpace(unified) == "" {
		return nil, fmt.Errorf("%w: empty diff", ErrInvalidPatch)
	}

	fd, err := diff.ParseFileDiff([]byte(unified))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	if len(fd.Hunks) == 0 {
		return nil, fmt.Errorf("%w: diff has no hunks", ErrInvalidPatch)
	}

	if filePath == "" {
		filePath = strings.TrimPrefix(fd.NewName, "b/")
	}
	if filePath == "" || filePath == "/dev/null" {
		return nil, fmt.Errorf("%w: diff does not name a target file", ErrInvalidPatch)
	}

	return &Patch{
		BugKey:    bugKey,
		FilePath:  filePath,
		Diff:      unified,
		Rationale: rationale,
	}, nil
}

// Digest returns a short content digest of the diff, used to recognize a
// strategy re-proposing the same failed patch.
func (p *Patch) Digest() string {
	sum := sha256.Sum256([]byte(p.Diff))
	return hex.EncodeToString(sum[:8])
}

// Apply applies the patch hunks to the given file content.
//
// Description:
//
//	Hunks are applied in reverse order so earlier hunks do not shift the
//	line numbers of later ones. Context and removed lines are verified
//	against the current content; any mismatch rejects the whole patch
//	with ErrPatchConflict, leaving the caller's content untouched.
//
// Inputs:
//
//	content - Current content of the target file.
//
// Outputs:
//
//	string - The patched content.
//	error - Non-nil on parse failure or hunk conflict.
func (p *Patch) Apply(content string) (string, error) {
	fd, err := diff.ParseFileDiff([]byte(p.Diff))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}

	lines := strings.Split(content, "\n")

	for i := len(fd.Hunks) - 1; i >= 0; i-- {
		hunk := fd.Hunks[i]

		var newHunkLines []string
		var oldCount int
		cursor := int(hunk.OrigStartLine) - 1
		if cursor < 0 {
			cursor = 0
		}

		for _, raw := range strings.Split(strings.TrimSuffix(string(hunk.Body), "\n"), "\n") {
			if raw == "" {
				continue
			}
			marker, text := raw[0], raw[1:]
			switch marker {
			case ' ':
				if cursor+oldCount >= len(lines) || lines[cursor+oldCount] != text {
					return "", fmt.Errorf("%w: context mismatch at %s:%d", ErrPatchConflict, p.FilePath, cursor+oldCount+1)
				}
				newHunkLines = append(newHunkLines, text)
				oldCount++
			case '-':
				if cursor+oldCount >= len(lines) || lines[cursor+oldCount] != text {
					return "", fmt.Errorf("%w: removed line mismatch at %s:%d", ErrPatchConflict, p.FilePath, cursor+oldCount+1)
				}
				oldCount++
			case '+':
				newHunkLines = append(newHunkLines, text)
			case '\\':
				// "\ No newline at end of file" - nothing to apply
			default:
				return "", fmt.Errorf("%w: unexpected hunk line %q", ErrInvalidPatch, raw)
			}
		}

		start := int(hunk.OrigStartLine) - 1
		if start < 0 {
			start = 0
		}
		end := start + oldCount
		if end > len(lines) {
			return "", fmt.Errorf("%w: hunk exceeds file length", ErrPatchConflict)
		}

		patched := make([]string, 0, len(lines)-oldCount+len(newHunkLines))
		patched = append(patched, lines[:start]...)
		patched = append(patched, newHunkLines...)
		patched = append(patched, lines[end:]...)
		lines = patched
	}

	return strings.Join(lines, "\n"), nil
}
