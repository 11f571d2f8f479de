// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package provider bridges the typed operation layer to Go's crypto/*
// and x/crypto primitives, the way original_source bridges OpenSSL
// behind small owning wrappers (spec.md §4.6).
package provider

import (
	"crypto"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"github.com/lowRISC/kryoptic-go/pkg/ckrv"
)

// HashAlg names one of the digest algorithms this kernel's mechanisms
// support.
type HashAlg int

const (
	SHA1 HashAlg = iota
	SHA256
	SHA384
	SHA512
)

func newHashFunc(alg HashAlg) (func() hash.Hash, int, error) {
	switch alg {
	case SHA1:
		return sha1.New, sha1.Size, nil
	case SHA256:
		return sha256.New, sha256.Size, nil
	case SHA384:
		return sha512.New384, sha512.Size384, nil
	case SHA512:
		return sha512.New, sha512.Size, nil
	default:
		return nil, 0, ckrv.MechanismInvalid()
	}
}

// HashState owns a lazily created hash.Hash, mirroring original_source's
// provider wrapper that records a null native state until first use.
type HashState struct {
	newHash func() hash.Hash
	size    int
	state   hash.Hash
}

func NewHashState(alg HashAlg) (*HashState, error) {
	nh, size, err := newHashFunc(alg)
	if err != nil {
		return nil, err
	}
	return &HashState{newHash: nh, size: size}, nil
}

// Get lazily creates the native state and returns it for feeding.
func (h *HashState) Get() hash.Hash {
	if h.state == nil {
		h.state = h.newHash()
	}
	return h.state
}

func (h *HashState) Size() int { return h.size }

// New returns a fresh, unshared hash instance of the same algorithm,
// used by HMAC's K0/ipad/opad construction which needs independent
// inner/outer contexts rather than the shared lazily-created one.
func (h *HashState) New() hash.Hash { return h.newHash() }

// Close releases the native state, the way the source's wrapper nulls
// its pointer on drop. Go's hash.Hash exposes no manual zeroization, so
// this only drops the reference for garbage collection.
func (h *HashState) Close() {
	h.state = nil
}

// cryptoHash maps a HashAlg to the stdlib crypto.Hash identifier
// rsa.SignPKCS1v15/VerifyPKCS1v15 need to select their ASN.1 DigestInfo
// prefix.
func cryptoHash(alg HashAlg) (crypto.Hash, error) {
	switch alg {
	case SHA1:
		return crypto.SHA1, nil
	case SHA256:
		return crypto.SHA256, nil
	case SHA384:
		return crypto.SHA384, nil
	case SHA512:
		return crypto.SHA512, nil
	default:
		return 0, ckrv.MechanismInvalid()
	}
}
