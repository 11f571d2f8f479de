// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package token wires the mechanism registry, object factory table,
// DRBG, and storage backend into one Token. Each call to Open builds a
// new Token with its own registry, factories, DRBG and storage; the
// package keeps no process-wide instance and no init-on-first-use gate.
package token

import (
	"fmt"
	"sync"

	"github.com/miekg/pkcs11"

	"github.com/lowRISC/kryoptic-go/pkg/ckrv"
	"github.com/lowRISC/kryoptic-go/pkg/config"
	"github.com/lowRISC/kryoptic-go/pkg/logger"
	"github.com/lowRISC/kryoptic-go/pkg/mechanism"
	"github.com/lowRISC/kryoptic-go/pkg/object"
	"github.com/lowRISC/kryoptic-go/pkg/ops"
	"github.com/lowRISC/kryoptic-go/pkg/provider"
	"github.com/lowRISC/kryoptic-go/pkg/rng"
	"github.com/lowRISC/kryoptic-go/pkg/storage"
	"github.com/lowRISC/kryoptic-go/pkg/storage/jsonstore"
	"github.com/lowRISC/kryoptic-go/pkg/storage/sqlstore"
)

// Minimum/maximum RSA modulus bits this build accepts, per spec.md
// §4.4's universal key-size gate; 0 as a max means unbounded.
const (
	rsaMinBits = 1024
	rsaMaxBits = 4096
)

// Token bundles the registry, factories, RNG, and storage backend a
// running cryptoki session issues operations against.
type Token struct {
	Mechanisms *mechanism.Registry
	Factories  *object.Factories
	RNG        *rng.RNG
	Storage    storage.Storage

	mu sync.Mutex
}

// Open builds a Token from cfg: registers every mechanism and object
// factory in spec.md §6's minimum set, seeds the DRBG, and opens the
// configured storage backend.
func Open(cfg *config.Config) (*Token, error) {
	log, err := logger.Named("token")
	if err != nil {
		return nil, err
	}

	reg := mechanism.NewRegistry()

	reg.Add(pkcs11.CKM_SHA_1, ops.NewDigestMechanism(provider.SHA1))
	reg.Add(pkcs11.CKM_SHA256, ops.NewDigestMechanism(provider.SHA256))
	reg.Add(pkcs11.CKM_SHA384, ops.NewDigestMechanism(provider.SHA384))
	reg.Add(pkcs11.CKM_SHA512, ops.NewDigestMechanism(provider.SHA512))

	reg.Add(pkcs11.CKM_SHA_1_HMAC, ops.NewHMACMechanism(provider.SHA1, 20, false))
	reg.Add(pkcs11.CKM_SHA256_HMAC, ops.NewHMACMechanism(provider.SHA256, 32, false))
	reg.Add(pkcs11.CKM_SHA384_HMAC, ops.NewHMACMechanism(provider.SHA384, 48, false))
	reg.Add(pkcs11.CKM_SHA512_HMAC, ops.NewHMACMechanism(provider.SHA512, 64, false))
	reg.Add(pkcs11.CKM_SHA_1_HMAC_GENERAL, ops.NewHMACMechanism(provider.SHA1, 20, true))
	reg.Add(pkcs11.CKM_SHA256_HMAC_GENERAL, ops.NewHMACMechanism(provider.SHA256, 32, true))
	reg.Add(pkcs11.CKM_SHA384_HMAC_GENERAL, ops.NewHMACMechanism(provider.SHA384, 48, true))
	reg.Add(pkcs11.CKM_SHA512_HMAC_GENERAL, ops.NewHMACMechanism(provider.SHA512, 64, true))

	reg.Add(pkcs11.CKM_RSA_PKCS, ops.NewRSAPKCSMechanism(rsaMinBits, rsaMaxBits))
	reg.Add(pkcs11.CKM_SHA1_RSA_PKCS, ops.NewRSADigestSignMechanism(provider.SHA1, rsaMinBits, rsaMaxBits))
	reg.Add(pkcs11.CKM_SHA256_RSA_PKCS, ops.NewRSADigestSignMechanism(provider.SHA256, rsaMinBits, rsaMaxBits))
	reg.Add(pkcs11.CKM_SHA384_RSA_PKCS, ops.NewRSADigestSignMechanism(provider.SHA384, rsaMinBits, rsaMaxBits))
	reg.Add(pkcs11.CKM_SHA512_RSA_PKCS, ops.NewRSADigestSignMechanism(provider.SHA512, rsaMinBits, rsaMaxBits))
	reg.Add(pkcs11.CKM_RSA_PKCS_KEY_PAIR_GEN, ops.NewRSAKeyPairGenMechanism(rsaMinBits, rsaMaxBits))

	reg.Add(pkcs11.CKM_EC_MONTGOMERY_KEY_PAIR_GEN, ops.NewECMontgomeryKeyPairGenMechanism())

	factories := object.NewFactories()
	factories.Add(object.ObjectType{Class: uint64(pkcs11.CKO_DATA)}, object.NewDataObjectFactory())
	factories.Add(object.ObjectType{Class: uint64(pkcs11.CKO_PUBLIC_KEY), KeyType: uint64(pkcs11.CKK_RSA)}, object.NewRSAPublicKeyFactory())
	factories.Add(object.ObjectType{Class: uint64(pkcs11.CKO_PRIVATE_KEY), KeyType: uint64(pkcs11.CKK_RSA)}, object.NewRSAPrivateKeyFactory())
	factories.Add(object.ObjectType{Class: uint64(pkcs11.CKO_PUBLIC_KEY), KeyType: uint64(pkcs11.CKK_EC_MONTGOMERY)}, object.NewECMontgomeryPublicKeyFactory())
	factories.Add(object.ObjectType{Class: uint64(pkcs11.CKO_PRIVATE_KEY), KeyType: uint64(pkcs11.CKK_EC_MONTGOMERY)}, object.NewECMontgomeryPrivateKeyFactory())

	drbgAlg := "HMAC DRBG SHA256"
	if cfg != nil && cfg.DRBGAlg != "" {
		drbgAlg = cfg.DRBGAlg
	}
	r, err := rng.New(drbgAlg)
	if err != nil {
		return nil, err
	}
	log.Info(fmt.Errorf("seeded DRBG %q", drbgAlg))

	var backend storage.Storage
	kind := config.StorageJSON
	path := ""
	if cfg != nil {
		if cfg.StorageKind != "" {
			kind = cfg.StorageKind
		}
		path = cfg.StoragePath
	}
	switch kind {
	case config.StorageSQL:
		backend = sqlstore.New()
	default:
		backend = jsonstore.New()
	}
	if path != "" {
		if err := backend.Open(path); err != nil {
			return nil, err
		}
		log.Info(fmt.Errorf("opened %s store at %q", kind, path))
	}

	log.Info(fmt.Errorf("registered %d mechanisms", len(reg.List())))

	return &Token{Mechanisms: reg, Factories: factories, RNG: r, Storage: backend}, nil
}

// WithLock serializes DRBG access per spec.md §5 ("callers must hold a
// single exclusive reference for every generate/reseed").
func (t *Token) WithLock(fn func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn()
}

// CreateObject runs the spec.md §4.3 factory lookup and persists the
// result when CKA_TOKEN is true.
func (t *Token) CreateObject(handle uint64, template []*pkcs11.Attribute) (*object.Object, error) {
	obj, err := t.Factories.Create(handle, template)
	if err != nil {
		return nil, err
	}
	if obj.IsToken() {
		uid, err := obj.GetAttrAsString(pkcs11.CKA_UNIQUE_ID)
		if err != nil {
			return nil, ckrv.Wrap(pkcs11.CKR_DEVICE_ERROR, err)
		}
		if err := t.Storage.Store(uid, obj); err != nil {
			return nil, err
		}
	}
	return obj, nil
}
