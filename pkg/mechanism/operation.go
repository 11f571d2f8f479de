// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package mechanism

import (
	"github.com/lowRISC/kryoptic-go/pkg/ckrv"
	"github.com/lowRISC/kryoptic-go/pkg/rng"
)

// State implements the shared (in_use, finalized) state machine of
// spec.md §4.5: Fresh -> Running -> Done, Done terminal.
type State struct {
	inUse     bool
	finalized bool
}

func (s *State) InUse() bool     { return s.inUse }
func (s *State) Finalized() bool { return s.finalized }

// StartOneShot allows a one-shot call (encrypt/decrypt/sign/verify/digest)
// only from Fresh, per spec.md §4.5.
func (s *State) StartOneShot() error {
	if s.inUse || s.finalized {
		return ckrv.OperationNotInitialized()
	}
	return nil
}

// FinishOneShot unconditionally marks the operation Done, on any outcome.
func (s *State) FinishOneShot() {
	s.inUse = true
	s.finalized = true
}

// StartUpdate allows the first *_update call from Fresh (moving to
// Running) or a later one from Running; it fails from Done.
// singleShotOnly mechanisms (e.g. raw RSA_PKCS without digest) pass true
// to reject *_update from Fresh entirely.
func (s *State) StartUpdate(singleShotOnly bool) error {
	if s.finalized {
		return ckrv.OperationNotInitialized()
	}
	if !s.inUse && singleShotOnly {
		return ckrv.OperationNotInitialized()
	}
	s.inUse = true
	return nil
}

// StartFinal allows *_final only from Running.
func (s *State) StartFinal() error {
	if !s.inUse || s.finalized {
		return ckrv.OperationNotInitialized()
	}
	return nil
}

// FinishFinal marks the operation Done; called once StartFinal succeeds
// and the caller's buffer was large enough to actually consume the
// result (the null-buffer size-query convention never reaches this).
func (s *State) FinishFinal() {
	s.finalized = true
}

// MechOperation is the common surface of every concrete operation.
type MechOperation interface {
	Mechanism() uint
	InUse() bool
	Finalized() bool
}

type Encryption interface {
	MechOperation
	Encrypt(r *rng.RNG, plain []byte) (cipher []byte, err error)
	EncryptUpdate(r *rng.RNG, plain []byte) (cipher []byte, err error)
	EncryptFinal(r *rng.RNG) (cipher []byte, err error)
}

type Decryption interface {
	MechOperation
	Decrypt(r *rng.RNG, cipher []byte) (plain []byte, err error)
	DecryptUpdate(r *rng.RNG, cipher []byte) (plain []byte, err error)
	DecryptFinal(r *rng.RNG) (plain []byte, err error)
}

type Digest interface {
	MechOperation
	Digest(data []byte) (digest []byte, err error)
	DigestUpdate(data []byte) error
	DigestFinal() (digest []byte, err error)
	DigestLen() int
}

type Sign interface {
	MechOperation
	Sign(r *rng.RNG, data []byte) (signature []byte, err error)
	SignUpdate(data []byte) error
	SignFinal(r *rng.RNG) (signature []byte, err error)
	SignatureLen() int
}

type Verify interface {
	MechOperation
	Verify(data, signature []byte) error
	VerifyUpdate(data []byte) error
	VerifyFinal(signature []byte) error
}

// Kind discriminates the current per-session operation, mirroring
// original_source's Operation enum (spec.md §3).
type Kind int

const (
	Empty Kind = iota
	Search
	EncryptionOp
	DecryptionOp
	DigestOp
	SignOp
	VerifyOp
)

// Operation is the closed sum type a session holds: at most one
// concrete operation is active at a time, chosen at construction per
// original_source's Operation enum. A closed sum type fits this kernel
// because every supported mechanism is known at compile time (spec.md §9).
type Operation struct {
	kind       Kind
	encryption Encryption
	decryption Decryption
	digest     Digest
	sign       Sign
	verify     Verify
}

func EmptyOperation() Operation { return Operation{kind: Empty} }

func FromEncryption(op Encryption) Operation { return Operation{kind: EncryptionOp, encryption: op} }
func FromDecryption(op Decryption) Operation { return Operation{kind: DecryptionOp, decryption: op} }
func FromDigest(op Digest) Operation         { return Operation{kind: DigestOp, digest: op} }
func FromSign(op Sign) Operation             { return Operation{kind: SignOp, sign: op} }
func FromVerify(op Verify) Operation         { return Operation{kind: VerifyOp, verify: op} }

func (o Operation) Kind() Kind { return o.kind }

func (o Operation) Finalized() bool {
	switch o.kind {
	case Empty:
		return true
	case EncryptionOp:
		return o.encryption.Finalized()
	case DecryptionOp:
		return o.decryption.Finalized()
	case DigestOp:
		return o.digest.Finalized()
	case SignOp:
		return o.sign.Finalized()
	case VerifyOp:
		return o.verify.Finalized()
	default:
		return true
	}
}

func (o Operation) Encryption() (Encryption, error) {
	if o.kind != EncryptionOp {
		return nil, ckrv.OperationNotInitialized()
	}
	return o.encryption, nil
}

func (o Operation) Decryption() (Decryption, error) {
	if o.kind != DecryptionOp {
		return nil, ckrv.OperationNotInitialized()
	}
	return o.decryption, nil
}

func (o Operation) Digest() (Digest, error) {
	if o.kind != DigestOp {
		return nil, ckrv.OperationNotInitialized()
	}
	return o.digest, nil
}

func (o Operation) Sign() (Sign, error) {
	if o.kind != SignOp {
		return nil, ckrv.OperationNotInitialized()
	}
	return o.sign, nil
}

func (o Operation) Verify() (Verify, error) {
	if o.kind != VerifyOp {
		return nil, ckrv.OperationNotInitialized()
	}
	return o.verify, nil
}
