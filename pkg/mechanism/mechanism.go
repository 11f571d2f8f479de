// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package mechanism implements the mechanism registry and the operation
// state machines of spec.md §4.4/§4.5, grounded on
// original_source/src/mechanism.rs.
package mechanism

import (
	"sort"

	"github.com/miekg/pkcs11"

	"github.com/lowRISC/kryoptic-go/pkg/ckrv"
	"github.com/lowRISC/kryoptic-go/pkg/object"
	"github.com/lowRISC/kryoptic-go/pkg/rng"
)

// Info mirrors CK_MECHANISM_INFO: key-size bounds and capability flags.
type Info struct {
	MinKeySize uint64
	MaxKeySize uint64
	Flags      uint64
}

// Impl is the set of constructors a registered mechanism may support.
// Every constructor defaults to CKR_MECHANISM_INVALID; a concrete
// mechanism overrides only the ones it implements, the way
// original_source's Mechanism trait supplies default-erroring methods.
type Impl interface {
	Info() Info

	NewEncryption(mech *pkcs11.Mechanism, key *object.Object) (Encryption, error)
	NewDecryption(mech *pkcs11.Mechanism, key *object.Object) (Decryption, error)
	NewDigest(mech *pkcs11.Mechanism) (Digest, error)
	NewSign(mech *pkcs11.Mechanism, key *object.Object) (Sign, error)
	NewVerify(mech *pkcs11.Mechanism, key *object.Object) (Verify, error)
	GenerateKey(r *rng.RNG, mech *pkcs11.Mechanism, template []*pkcs11.Attribute) (*object.Object, error)
	GenerateKeyPair(r *rng.RNG, mech *pkcs11.Mechanism, pubTemplate, privTemplate []*pkcs11.Attribute) (pub, priv *object.Object, err error)
}

// Base gives mechanism implementations every constructor's default
// CKR_MECHANISM_INVALID behavior for free; embed it and override only
// the constructors actually supported.
type Base struct{}

func (Base) NewEncryption(*pkcs11.Mechanism, *object.Object) (Encryption, error) {
	return nil, ckrv.MechanismInvalid()
}
func (Base) NewDecryption(*pkcs11.Mechanism, *object.Object) (Decryption, error) {
	return nil, ckrv.MechanismInvalid()
}
func (Base) NewDigest(*pkcs11.Mechanism) (Digest, error) {
	return nil, ckrv.MechanismInvalid()
}
func (Base) NewSign(*pkcs11.Mechanism, *object.Object) (Sign, error) {
	return nil, ckrv.MechanismInvalid()
}
func (Base) NewVerify(*pkcs11.Mechanism, *object.Object) (Verify, error) {
	return nil, ckrv.MechanismInvalid()
}
func (Base) GenerateKey(*rng.RNG, *pkcs11.Mechanism, []*pkcs11.Attribute) (*object.Object, error) {
	return nil, ckrv.MechanismInvalid()
}
func (Base) GenerateKeyPair(*rng.RNG, *pkcs11.Mechanism, []*pkcs11.Attribute, []*pkcs11.Attribute) (*object.Object, *object.Object, error) {
	return nil, nil, ckrv.MechanismInvalid()
}

// Registry is an ordered mechanism_type -> Impl map (List returns the
// registered types in ascending order), built once at library init and
// shared read-only afterward (spec.md §5).
type Registry struct {
	byType map[uint]Impl
}

func NewRegistry() *Registry {
	return &Registry{byType: make(map[uint]Impl)}
}

func (r *Registry) Add(typ uint, impl Impl) {
	r.byType[typ] = impl
}

func (r *Registry) List() []uint {
	out := make([]uint, 0, len(r.byType))
	for t := range r.byType {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) Info(typ uint) (Info, bool) {
	impl, ok := r.byType[typ]
	if !ok {
		return Info{}, false
	}
	return impl.Info(), true
}

func (r *Registry) Get(typ uint) (Impl, error) {
	impl, ok := r.byType[typ]
	if !ok {
		return nil, ckrv.MechanismInvalid()
	}
	return impl, nil
}

// KeySizeInBits computes the |attr|*8 size used by the universal
// asymmetric key-size gate in spec.md §4.4.
func KeySizeInBits(key *object.Object, sizeAttr uint) (uint64, error) {
	raw, err := key.GetAttrAsBytes(sizeAttr)
	if err != nil {
		return 0, err
	}
	return uint64(len(raw)) * 8, nil
}

// CheckKeySize applies the ulMinKeySize/ulMaxKeySize gate every
// asymmetric constructor must run before proceeding.
func CheckKeySize(info Info, bits uint64) error {
	if bits < info.MinKeySize {
		return ckrv.KeySizeRange()
	}
	if info.MaxKeySize != 0 && bits > info.MaxKeySize {
		return ckrv.KeySizeRange()
	}
	return nil
}
