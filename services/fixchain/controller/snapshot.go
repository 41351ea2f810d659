// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package controller

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// snapshot captures the byte-exact content of an artifact before a round's
// apply phase so a degraded round can be rolled back completely.
//
// The artifact root may be a single file or a directory tree. Restore
// rewrites every captured file and removes files created after the
// snapshot, so the restored tree equals the captured one byte for byte.
type snapshot struct {
	root    string
	isDir   bool
	files   map[string][]byte      // rel path -> content
	modes   map[string]fs.FileMode // rel path -> mode
}

// takeSnapshot captures the artifact rooted at path.
func takeSnapshot(path string) (*snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotFailed, err)
	}

	s := &snapshot{
		root:  path,
		isDir: info.IsDir(),
		files: make(map[string][]byte),
		modes: make(map[string]fs.FileMode),
	}

	if !s.isDir {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSnapshotFailed, err)
		}
		s.files["."] = data
		s.modes["."] = info.Mode()
		return s, nil
	}

	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		s.files[rel] = data
		s.modes[rel] = info.Mode()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotFailed, err)
	}
	return s, nil
}

// restore rewrites the artifact to the captured state.
//
// Description:
//
//	Every captured file is rewritten with its original content and mode;
//	files that appeared under the root after the snapshot are removed.
//	A restore failure is fatal to the session: it violates the
//	never-leave-partial-state invariant.
func (s *snapshot) restore() error {
	if !s.isDir {
		if err := os.WriteFile(s.root, s.files["."], s.modes["."]); err != nil {
			return fmt.Errorf("%w: %v", ErrRollbackFailed, err)
		}
		return nil
	}

	// Remove files created since the snapshot.
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		if _, ok := s.files[rel]; !ok {
			return os.Remove(p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRollbackFailed, err)
	}

	for rel, data := range s.files {
		p := filepath.Join(s.root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return fmt.Errorf("%w: %v", ErrRollbackFailed, err)
		}
		if err := os.WriteFile(p, data, s.modes[rel]); err != nil {
			return fmt.Errorf("%w: %v", ErrRollbackFailed, err)
		}
	}
	return nil
}

// fileContent returns the current on-disk content of a file addressed
// relative to the artifact root. A bare-file artifact ignores rel.
func fileContent(root, rel string) (string, bool, error) {
	info, err := os.Stat(root)
	if err != nil {
		return "", false, err
	}

	p := root
	if info.IsDir() {
		p = filepath.Join(root, rel)
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

// writeFileContent writes patched content back to the addressed file.
func writeFileContent(root, rel, content string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}

	p := root
	mode := fs.FileMode(0644)
	if info.IsDir() {
		p = filepath.Join(root, rel)
		if fi, err := os.Stat(p); err == nil {
			mode = fi.Mode()
		}
	} else {
		mode = info.Mode()
	}
	return os.WriteFile(p, []byte(content), mode)
}
