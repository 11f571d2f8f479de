// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingEnvDefaults(t *testing.T) {
	t.Setenv(envVar, "")
	c, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if c.StorageKind != StorageJSON || c.DRBGAlg != "HMAC DRBG SHA256" {
		t.Fatalf("Load() = %+v, want defaulted json/HMAC DRBG SHA256", c)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kryoptic.json")
	data := `{"storage_kind": "sql", "storage_path": "/tmp/token.db"}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if c.StorageKind != StorageSQL || c.StoragePath != "/tmp/token.db" || c.DRBGAlg != "HMAC DRBG SHA256" {
		t.Fatalf("LoadFile() = %+v, want sql/override path/defaulted alg", c)
	}
}
