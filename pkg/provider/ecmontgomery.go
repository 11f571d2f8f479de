// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"crypto/ecdh"
	"io"

	"golang.org/x/crypto/curve25519"

	"github.com/lowRISC/kryoptic-go/pkg/ckrv"
)

// GenerateX25519KeyPair produces a private scalar and its corresponding
// public point over Curve25519, via x/crypto/curve25519 (the teacher's
// own golang.org/x/crypto dependency), drawing the scalar from rand (the
// token's DRBG) per spec.md §9's requirement that every randomness
// consumer route through the named RNG.
func GenerateX25519KeyPair(rand io.Reader) (priv, pub []byte, err error) {
	priv = make([]byte, curve25519.ScalarSize)
	if _, err := io.ReadFull(rand, priv); err != nil {
		return nil, nil, ckrv.Wrap(ckrv.RV(err), err)
	}
	pub, err = curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, nil, ckrv.Wrap(ckrv.RV(err), err)
	}
	return priv, pub, nil
}

// GenerateX448KeyPair produces a Curve448 keypair via the standard
// library's crypto/ecdh, since x/crypto ships no Curve448 implementation
// (spec.md §5 supplement), drawing its randomness from rand.
func GenerateX448KeyPair(rand io.Reader) (priv, pub []byte, err error) {
	key, err := ecdh.X448().GenerateKey(rand)
	if err != nil {
		return nil, nil, ckrv.Wrap(ckrv.RV(err), err)
	}
	return key.Bytes(), key.PublicKey().Bytes(), nil
}
