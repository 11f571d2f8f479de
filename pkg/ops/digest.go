// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package ops implements the concrete mechanisms named in spec.md §6:
// digest, HMAC, RSA PKCS#1 v1.5, and EC-Montgomery keypair generation,
// grounded on original_source/src/hmac.rs, src/fips/rsa.rs, and
// src/ec/montgomery.rs.
package ops

import (
	"github.com/miekg/pkcs11"

	"github.com/lowRISC/kryoptic-go/pkg/mechanism"
	"github.com/lowRISC/kryoptic-go/pkg/provider"
)

// DigestMechanism implements CKM_SHA_1/SHA256/SHA384/SHA512.
type DigestMechanism struct {
	mechanism.Base
	alg provider.HashAlg
}

func NewDigestMechanism(alg provider.HashAlg) *DigestMechanism {
	return &DigestMechanism{alg: alg}
}

func (m *DigestMechanism) Info() mechanism.Info {
	return mechanism.Info{Flags: pkcs11.CKF_DIGEST}
}

func (m *DigestMechanism) NewDigest(mech *pkcs11.Mechanism) (mechanism.Digest, error) {
	hs, err := provider.NewHashState(m.alg)
	if err != nil {
		return nil, err
	}
	return &digestOperation{typ: mech.Mechanism, hash: hs.New()}, nil
}

// digestOperation is a single-shot-or-streamed digest, one of the
// simplest instances of the shared Operation state machine (spec.md
// §4.5): it has no single-shot-only restriction, since SHA*_update is
// always legal from Fresh.
type digestOperation struct {
	mechanism.State
	typ  uint
	hash hashWriter
}

// hashWriter is the subset of hash.Hash a digest operation drives.
type hashWriter interface {
	Write(p []byte) (int, error)
	Sum(b []byte) []byte
	Size() int
	Reset()
}

func (d *digestOperation) Mechanism() uint { return d.typ }

func (d *digestOperation) DigestLen() int { return d.hash.Size() }

func (d *digestOperation) Digest(data []byte) ([]byte, error) {
	if err := d.StartOneShot(); err != nil {
		return nil, err
	}
	defer d.FinishOneShot()
	d.hash.Write(data)
	return d.hash.Sum(nil), nil
}

func (d *digestOperation) DigestUpdate(data []byte) error {
	if err := d.StartUpdate(false); err != nil {
		return err
	}
	d.hash.Write(data)
	return nil
}

func (d *digestOperation) DigestFinal() ([]byte, error) {
	if err := d.StartFinal(); err != nil {
		return nil, err
	}
	defer d.FinishFinal()
	return d.hash.Sum(nil), nil
}
