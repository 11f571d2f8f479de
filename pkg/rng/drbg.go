// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package rng implements the HMAC-DRBG (NIST SP 800-90A) subsystem
// fronting the token's RNG, grounded on original_source/src/rng.rs (the
// RNG wrapper) and the HMAC construction this kernel also uses for
// CKM_*_HMAC in package ops.
package rng

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"github.com/google/tink/go/subtle/random"
	"github.com/miekg/pkcs11"

	"github.com/lowRISC/kryoptic-go/pkg/ckrv"
)

// reseedInterval is the maximum number of generate() calls served from
// one seed before a caller-supplied reseed is mandatory, per SP 800-90A.
const reseedInterval = 1 << 20

// hmacDRBG is the HMAC_DRBG construction (SP 800-90A §10.1.2) over a
// given hash constructor.
type hmacDRBG struct {
	newHash   func() hash.Hash
	outlen    int
	key       []byte
	v         []byte
	reseedCtr uint64
	seeded    bool
}

func newHMACDRBG(newHash func() hash.Hash, outlen int) *hmacDRBG {
	return &hmacDRBG{newHash: newHash, outlen: outlen}
}

func (d *hmacDRBG) hmac(key, data []byte) []byte {
	m := hmac.New(d.newHash, key)
	m.Write(data)
	return m.Sum(nil)
}

// update implements the HMAC_DRBG_Update primitive (SP 800-90A §10.1.2.2).
func (d *hmacDRBG) update(providedData []byte) {
	msg0 := append(append(append([]byte{}, d.v...), 0x00), providedData...)
	d.key = d.hmac(d.key, msg0)
	d.v = d.hmac(d.key, d.v)
	if len(providedData) == 0 {
		return
	}
	msg1 := append(append(append([]byte{}, d.v...), 0x01), providedData...)
	d.key = d.hmac(d.key, msg1)
	d.v = d.hmac(d.key, d.v)
}

func (d *hmacDRBG) init(entropy, nonce, personalization []byte) error {
	d.key = make([]byte, d.outlen)
	for i := range d.key {
		d.key[i] = 0x00
	}
	d.v = make([]byte, d.outlen)
	for i := range d.v {
		d.v[i] = 0x01
	}
	seedMaterial := append(append(append([]byte{}, entropy...), nonce...), personalization...)
	d.update(seedMaterial)
	d.reseedCtr = 1
	d.seeded = true
	return nil
}

func (d *hmacDRBG) reseed(entropy, additional []byte) error {
	if !d.seeded {
		return ckrv.Newf(pkcs11.CKR_DEVICE_ERROR, "drbg not initialized")
	}
	seedMaterial := append(append([]byte{}, entropy...), additional...)
	d.update(seedMaterial)
	d.reseedCtr = 1
	return nil
}

func (d *hmacDRBG) generate(additional, out []byte) error {
	if !d.seeded {
		return ckrv.GeneralError()
	}
	if d.reseedCtr > reseedInterval {
		return ckrv.Newf(pkcs11.CKR_DEVICE_ERROR, "reseed interval exceeded, reseed required")
	}
	if len(additional) > 0 {
		d.update(additional)
	}
	n := 0
	for n < len(out) {
		d.v = d.hmac(d.key, d.v)
		n += copy(out[n:], d.v)
	}
	if len(additional) > 0 {
		d.update(additional)
	} else {
		d.update(nil)
	}
	d.reseedCtr++
	return nil
}

// HMACSHA256DRBG and HMACSHA512DRBG are the two named DRBG instances
// exposed by name in RNG.New, per spec.md §4.7.
type HMACSHA256DRBG struct{ *hmacDRBG }

func newHMACSHA256DRBG() *HMACSHA256DRBG {
	return &HMACSHA256DRBG{newHMACDRBG(sha256.New, sha256.Size)}
}

type HMACSHA512DRBG struct{ *hmacDRBG }

func newHMACSHA512DRBG() *HMACSHA512DRBG {
	return &HMACSHA512DRBG{newHMACDRBG(sha512.New, sha512.Size)}
}

// drbg is the minimal interface RNG drives, mirroring original_source's
// DRBG trait in mechanism.rs.
type drbg interface {
	init(entropy, nonce, personalization []byte) error
	reseed(entropy, additional []byte) error
	generate(additional, out []byte) error
}

// RNG wraps a named DRBG instance. It is process-wide mutable state: the
// caller must hold a single exclusive reference (see token.Token.WithLock) for every
// Reseed/Generate call, per spec.md §5.
type RNG struct {
	d drbg
}

// New selects a DRBG by name, seeding it from OS entropy sourced through
// tink's subtle/random helper (the teacher's google/tink/go dependency),
// the same way original_source's RNG::new chooses among its registered
// DRBG implementations.
func New(alg string) (*RNG, error) {
	var d drbg
	var outlen int
	switch alg {
	case "HMAC DRBG SHA256":
		inner := newHMACSHA256DRBG()
		d, outlen = inner, sha256.Size
	case "HMAC DRBG SHA512":
		inner := newHMACSHA512DRBG()
		d, outlen = inner, sha512.Size
	default:
		return nil, ckrv.RandomNoRng()
	}
	entropy := random.GetRandomBytes(uint32(outlen))
	nonce := random.GetRandomBytes(uint32(outlen / 2))
	if err := d.init(entropy, nonce, nil); err != nil {
		return nil, ckrv.Wrap(pkcs11.CKR_DEVICE_ERROR, err)
	}
	return &RNG{d: d}, nil
}

// Reseed feeds fresh entropy and optional additional input into the
// underlying DRBG.
func (r *RNG) Reseed(entropy, additional []byte) error {
	return r.d.reseed(entropy, additional)
}

// Generate fills out with pseudorandom bytes derived from additional.
// A DRBG that has exhausted its reseed interval surfaces an error here
// rather than return weak output, per spec.md §4.7.
func (r *RNG) Generate(additional, out []byte) error {
	return r.d.generate(additional, out)
}

// GenerateRandom implements the RNG::generate_random contract of
// spec.md §4.7: fill out with empty additional input.
func (r *RNG) GenerateRandom(out []byte) error {
	return r.Generate(nil, out)
}

// Read implements io.Reader over GenerateRandom, so *RNG can be handed
// directly to stdlib crypto/* calls that want a randomness source (RSA
// blinding/signing, RSA and EC-Montgomery key generation) instead of
// those callers reaching past the DRBG to crypto/rand.Reader.
func (r *RNG) Read(out []byte) (int, error) {
	if err := r.GenerateRandom(out); err != nil {
		return 0, err
	}
	return len(out), nil
}
