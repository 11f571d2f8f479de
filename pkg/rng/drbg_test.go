// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package rng

import (
	"bytes"
	"testing"

	"github.com/miekg/pkcs11"

	"github.com/lowRISC/kryoptic-go/pkg/ckrv"
)

func TestNewUnknownAlgFails(t *testing.T) {
	_, err := New("HMAC DRBG SHA1")
	if ckrv.RV(err) != pkcs11.CKR_RANDOM_NO_RNG {
		t.Fatalf("want RandomNoRng, got %v", err)
	}
}

func TestGenerateRandomFillsNonZeroBuffer(t *testing.T) {
	r, err := New("HMAC DRBG SHA256")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	out := make([]byte, 4)
	if err := r.GenerateRandom(out); err != nil {
		t.Fatalf("GenerateRandom() failed: %v", err)
	}
	if bytes.Equal(out, make([]byte, 4)) {
		t.Fatal("expected non-zero output after one generate call")
	}
}

func TestSuccessiveGeneratesDiffer(t *testing.T) {
	r, err := New("HMAC DRBG SHA256")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	first := make([]byte, 32)
	second := make([]byte, 32)
	if err := r.GenerateRandom(first); err != nil {
		t.Fatalf("first GenerateRandom() failed: %v", err)
	}
	if err := r.GenerateRandom(second); err != nil {
		t.Fatalf("second GenerateRandom() failed: %v", err)
	}
	if bytes.Equal(first, second) {
		t.Fatal("expected two successive generate_random calls to differ")
	}
}

func TestSHA512VariantAlsoWorks(t *testing.T) {
	r, err := New("HMAC DRBG SHA512")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	out := make([]byte, 64)
	if err := r.GenerateRandom(out); err != nil {
		t.Fatalf("GenerateRandom() failed: %v", err)
	}
	if bytes.Equal(out, make([]byte, 64)) {
		t.Fatal("expected non-zero output")
	}
}

func TestReseedResetsCounter(t *testing.T) {
	d := newHMACSHA256DRBG()
	if err := d.init(bytes.Repeat([]byte{0x01}, 32), bytes.Repeat([]byte{0x02}, 16), nil); err != nil {
		t.Fatalf("init() failed: %v", err)
	}
	d.reseedCtr = reseedInterval + 1
	out := make([]byte, 16)
	if err := d.generate(nil, out); ckrv.RV(err) != pkcs11.CKR_DEVICE_ERROR {
		t.Fatalf("want CKR_DEVICE_ERROR past reseed interval, got %v", err)
	}
	if err := d.reseed(bytes.Repeat([]byte{0x03}, 32), nil); err != nil {
		t.Fatalf("reseed() failed: %v", err)
	}
	if err := d.generate(nil, out); err != nil {
		t.Fatalf("generate() after reseed failed: %v", err)
	}
}

func TestUnseededDRBGRejectsGenerateAndReseed(t *testing.T) {
	d := newHMACSHA256DRBG()
	out := make([]byte, 16)
	if err := d.generate(nil, out); ckrv.RV(err) != pkcs11.CKR_GENERAL_ERROR {
		t.Fatalf("want GeneralError on unseeded generate, got %v", err)
	}
	if err := d.reseed(bytes.Repeat([]byte{0x01}, 32), nil); ckrv.RV(err) != pkcs11.CKR_DEVICE_ERROR {
		t.Fatalf("want CKR_DEVICE_ERROR on unseeded reseed, got %v", err)
	}
}
