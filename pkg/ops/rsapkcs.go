// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package ops

import (
	"math/big"

	"github.com/miekg/pkcs11"

	"github.com/lowRISC/kryoptic-go/pkg/attribute"
	"github.com/lowRISC/kryoptic-go/pkg/ckrv"
	"github.com/lowRISC/kryoptic-go/pkg/mechanism"
	"github.com/lowRISC/kryoptic-go/pkg/object"
	"github.com/lowRISC/kryoptic-go/pkg/provider"
	"github.com/lowRISC/kryoptic-go/pkg/rng"
)

func rawAttr(a attribute.Attribute) *pkcs11.Attribute {
	return &pkcs11.Attribute{Type: a.ID(), Value: a.Value()}
}

// mergeForced combines a keypair generator's forced attributes (CLASS,
// KEY_TYPE, and the generated key material) with the caller's template,
// per spec.md:143-144: a caller entry whose id doesn't collide with a
// forced one is kept as-is, one that matches the forced value is
// tolerated, and one that contradicts it is rejected outright rather
// than being passed through to Create as a same-id duplicate.
func mergeForced(forced, template []*pkcs11.Attribute) ([]*pkcs11.Attribute, error) {
	scratch := object.New(0)
	for _, ck := range forced {
		a, err := attribute.FromCKAttribute(ck)
		if err != nil {
			return nil, err
		}
		scratch.SetAttr(a)
	}
	for _, ck := range template {
		a, err := attribute.FromCKAttribute(ck)
		if err != nil {
			return nil, err
		}
		if !scratch.CheckOrSetAttr(a) {
			return nil, ckrv.TemplateInconsistent()
		}
	}
	out := make([]*pkcs11.Attribute, 0, len(scratch.Attributes()))
	for _, a := range scratch.Attributes() {
		out = append(out, rawAttr(a))
	}
	return out, nil
}

func publicKeyMaterial(key *object.Object) (*provider.RSAPublicKey, error) {
	modulus, err := key.GetAttrAsBytes(pkcs11.CKA_MODULUS)
	if err != nil {
		return nil, err
	}
	exponent, err := key.GetAttrAsBytes(pkcs11.CKA_PUBLIC_EXPONENT)
	if err != nil {
		return nil, err
	}
	return provider.NewRSAPublicKey(append([]byte{}, modulus...), append([]byte{}, exponent...))
}

func privateKeyMaterial(key *object.Object) (*provider.RSAPrivateKey, error) {
	modulus, err := key.GetAttrAsBytes(pkcs11.CKA_MODULUS)
	if err != nil {
		return nil, err
	}
	exponent, err := key.GetAttrAsBytes(pkcs11.CKA_PUBLIC_EXPONENT)
	if err != nil {
		return nil, err
	}
	d, err := key.GetAttrAsBytes(pkcs11.CKA_PRIVATE_EXPONENT)
	if err != nil {
		return nil, err
	}
	p, err := key.GetAttrAsBytes(pkcs11.CKA_PRIME_1)
	if err != nil {
		return nil, err
	}
	q, err := key.GetAttrAsBytes(pkcs11.CKA_PRIME_2)
	if err != nil {
		return nil, err
	}
	return provider.NewRSAPrivateKey(
		append([]byte{}, modulus...), append([]byte{}, exponent...),
		append([]byte{}, d...), append([]byte{}, p...), append([]byte{}, q...))
}

func checkRSAKeySize(info mechanism.Info, key *object.Object) error {
	bits, err := mechanism.KeySizeInBits(key, pkcs11.CKA_MODULUS)
	if err != nil {
		return err
	}
	return mechanism.CheckKeySize(info, bits)
}

// RSAPKCSMechanism implements CKM_RSA_PKCS: raw (non-digest)
// encrypt/decrypt/sign/verify, one-shot only, per spec.md §4.5.2.
type RSAPKCSMechanism struct {
	mechanism.Base
	info mechanism.Info
}

func NewRSAPKCSMechanism(minBits, maxBits uint64) *RSAPKCSMechanism {
	return &RSAPKCSMechanism{info: mechanism.Info{
		MinKeySize: minBits,
		MaxKeySize: maxBits,
		Flags:      pkcs11.CKF_ENCRYPT | pkcs11.CKF_DECRYPT | pkcs11.CKF_SIGN | pkcs11.CKF_VERIFY,
	}}
}

func (m *RSAPKCSMechanism) Info() mechanism.Info { return m.info }

func (m *RSAPKCSMechanism) NewEncryption(mech *pkcs11.Mechanism, key *object.Object) (mechanism.Encryption, error) {
	if err := checkRSAKeySize(m.info, key); err != nil {
		return nil, err
	}
	pub, err := publicKeyMaterial(key)
	if err != nil {
		return nil, err
	}
	return &rsaEncryptOp{typ: mech.Mechanism, pub: pub}, nil
}

func (m *RSAPKCSMechanism) NewDecryption(mech *pkcs11.Mechanism, key *object.Object) (mechanism.Decryption, error) {
	if err := checkRSAKeySize(m.info, key); err != nil {
		return nil, err
	}
	priv, err := privateKeyMaterial(key)
	if err != nil {
		return nil, err
	}
	return &rsaDecryptOp{typ: mech.Mechanism, priv: priv}, nil
}

func (m *RSAPKCSMechanism) NewSign(mech *pkcs11.Mechanism, key *object.Object) (mechanism.Sign, error) {
	if err := checkRSAKeySize(m.info, key); err != nil {
		return nil, err
	}
	priv, err := privateKeyMaterial(key)
	if err != nil {
		return nil, err
	}
	return &rsaRawSignOp{typ: mech.Mechanism, priv: priv}, nil
}

func (m *RSAPKCSMechanism) NewVerify(mech *pkcs11.Mechanism, key *object.Object) (mechanism.Verify, error) {
	if err := checkRSAKeySize(m.info, key); err != nil {
		return nil, err
	}
	pub, err := publicKeyMaterial(key)
	if err != nil {
		return nil, err
	}
	return &rsaRawVerifyOp{typ: mech.Mechanism, pub: pub}, nil
}

type rsaEncryptOp struct {
	mechanism.State
	typ uint
	pub *provider.RSAPublicKey
}

func (o *rsaEncryptOp) Mechanism() uint { return o.typ }

func (o *rsaEncryptOp) Encrypt(r *rng.RNG, plain []byte) ([]byte, error) {
	if err := o.StartOneShot(); err != nil {
		return nil, err
	}
	defer o.FinishOneShot()
	if len(plain) > o.pub.ModulusLen()-11 {
		return nil, ckrv.DataLenRange()
	}
	if r == nil {
		return nil, ckrv.RandomNoRng()
	}
	return o.pub.Encrypt(r, plain)
}

func (o *rsaEncryptOp) EncryptUpdate(r *rng.RNG, plain []byte) ([]byte, error) {
	return nil, ckrv.OperationNotInitialized()
}

func (o *rsaEncryptOp) EncryptFinal(r *rng.RNG) ([]byte, error) {
	return nil, ckrv.OperationNotInitialized()
}

type rsaDecryptOp struct {
	mechanism.State
	typ  uint
	priv *provider.RSAPrivateKey
}

func (o *rsaDecryptOp) Mechanism() uint { return o.typ }

func (o *rsaDecryptOp) Decrypt(r *rng.RNG, cipher []byte) ([]byte, error) {
	if err := o.StartOneShot(); err != nil {
		return nil, err
	}
	defer o.FinishOneShot()
	defer o.priv.Close()
	if len(cipher) != o.priv.ModulusLen() {
		return nil, ckrv.DataLenRange()
	}
	if r == nil {
		return nil, ckrv.RandomNoRng()
	}
	return o.priv.Decrypt(r, cipher)
}

func (o *rsaDecryptOp) DecryptUpdate(r *rng.RNG, cipher []byte) ([]byte, error) {
	return nil, ckrv.OperationNotInitialized()
}

func (o *rsaDecryptOp) DecryptFinal(r *rng.RNG) ([]byte, error) {
	return nil, ckrv.OperationNotInitialized()
}

type rsaRawSignOp struct {
	mechanism.State
	typ  uint
	priv *provider.RSAPrivateKey
}

func (o *rsaRawSignOp) Mechanism() uint { return o.typ }

func (o *rsaRawSignOp) SignatureLen() int { return o.priv.ModulusLen() }

func (o *rsaRawSignOp) Sign(r *rng.RNG, data []byte) ([]byte, error) {
	if err := o.StartOneShot(); err != nil {
		return nil, err
	}
	defer o.FinishOneShot()
	defer o.priv.Close()
	if len(data) > o.priv.ModulusLen()-11 {
		return nil, ckrv.DataLenRange()
	}
	if r == nil {
		return nil, ckrv.RandomNoRng()
	}
	return o.priv.SignRaw(r, data)
}

// SignUpdate/SignFinal are absent from raw RSA_PKCS's one-shot-only
// contract: CKM_RSA_PKCS sign is single-shot (spec.md §4.5.2).
func (o *rsaRawSignOp) SignUpdate(data []byte) error {
	return ckrv.OperationNotInitialized()
}

func (o *rsaRawSignOp) SignFinal(r *rng.RNG) ([]byte, error) {
	return nil, ckrv.OperationNotInitialized()
}

// rsaRawVerifyOp is the non-digest verify path, a genuine PKCS#1 v1.5
// verify with the public key rather than a call to sign (spec.md §9
// Open Question).
type rsaRawVerifyOp struct {
	mechanism.State
	typ uint
	pub *provider.RSAPublicKey
}

func (o *rsaRawVerifyOp) Mechanism() uint { return o.typ }

func (o *rsaRawVerifyOp) Verify(data, signature []byte) error {
	if err := o.StartOneShot(); err != nil {
		return err
	}
	defer o.FinishOneShot()
	return o.pub.VerifyRaw(data, signature)
}

func (o *rsaRawVerifyOp) VerifyUpdate(data []byte) error {
	return ckrv.OperationNotInitialized()
}

func (o *rsaRawVerifyOp) VerifyFinal(signature []byte) error {
	return ckrv.OperationNotInitialized()
}

// RSADigestSignMechanism implements the SHAxxx_RSA_PKCS family: a
// multi-call init -> update* -> final that manages its own digest
// internally and then applies PKCS#1 v1.5 padding with the matching
// digest OID (spec.md §4.5.2).
type RSADigestSignMechanism struct {
	mechanism.Base
	info mechanism.Info
	alg  provider.HashAlg
}

func NewRSADigestSignMechanism(alg provider.HashAlg, minBits, maxBits uint64) *RSADigestSignMechanism {
	return &RSADigestSignMechanism{alg: alg, info: mechanism.Info{
		MinKeySize: minBits,
		MaxKeySize: maxBits,
		Flags:      pkcs11.CKF_SIGN | pkcs11.CKF_VERIFY,
	}}
}

func (m *RSADigestSignMechanism) Info() mechanism.Info { return m.info }

func (m *RSADigestSignMechanism) NewSign(mech *pkcs11.Mechanism, key *object.Object) (mechanism.Sign, error) {
	if err := checkRSAKeySize(m.info, key); err != nil {
		return nil, err
	}
	priv, err := privateKeyMaterial(key)
	if err != nil {
		return nil, err
	}
	hs, err := provider.NewHashState(m.alg)
	if err != nil {
		return nil, err
	}
	return &rsaDigestSignOp{typ: mech.Mechanism, priv: priv, alg: m.alg, hash: hs.New()}, nil
}

func (m *RSADigestSignMechanism) NewVerify(mech *pkcs11.Mechanism, key *object.Object) (mechanism.Verify, error) {
	if err := checkRSAKeySize(m.info, key); err != nil {
		return nil, err
	}
	pub, err := publicKeyMaterial(key)
	if err != nil {
		return nil, err
	}
	hs, err := provider.NewHashState(m.alg)
	if err != nil {
		return nil, err
	}
	return &rsaDigestVerifyOp{typ: mech.Mechanism, pub: pub, alg: m.alg, hash: hs.New()}, nil
}

type rsaDigestSignOp struct {
	mechanism.State
	typ  uint
	priv *provider.RSAPrivateKey
	alg  provider.HashAlg
	hash hashWriter
}

func (o *rsaDigestSignOp) Mechanism() uint  { return o.typ }
func (o *rsaDigestSignOp) SignatureLen() int { return o.priv.ModulusLen() }

func (o *rsaDigestSignOp) Sign(r *rng.RNG, data []byte) ([]byte, error) {
	if err := o.StartOneShot(); err != nil {
		return nil, err
	}
	defer o.FinishOneShot()
	defer o.priv.Close()
	if r == nil {
		return nil, ckrv.RandomNoRng()
	}
	o.hash.Write(data)
	return o.priv.SignDigest(r, o.alg, o.hash.Sum(nil))
}

func (o *rsaDigestSignOp) SignUpdate(data []byte) error {
	if err := o.StartUpdate(false); err != nil {
		return err
	}
	o.hash.Write(data)
	return nil
}

func (o *rsaDigestSignOp) SignFinal(r *rng.RNG) ([]byte, error) {
	if err := o.StartFinal(); err != nil {
		return nil, err
	}
	defer o.FinishFinal()
	defer o.priv.Close()
	if r == nil {
		return nil, ckrv.RandomNoRng()
	}
	return o.priv.SignDigest(r, o.alg, o.hash.Sum(nil))
}

type rsaDigestVerifyOp struct {
	mechanism.State
	typ  uint
	pub  *provider.RSAPublicKey
	alg  provider.HashAlg
	hash hashWriter
}

func (o *rsaDigestVerifyOp) Mechanism() uint { return o.typ }

func (o *rsaDigestVerifyOp) Verify(data, signature []byte) error {
	if err := o.StartOneShot(); err != nil {
		return err
	}
	defer o.FinishOneShot()
	o.hash.Write(data)
	return o.pub.VerifyDigest(o.alg, o.hash.Sum(nil), signature)
}

func (o *rsaDigestVerifyOp) VerifyUpdate(data []byte) error {
	if err := o.StartUpdate(false); err != nil {
		return err
	}
	o.hash.Write(data)
	return nil
}

func (o *rsaDigestVerifyOp) VerifyFinal(signature []byte) error {
	if err := o.StartFinal(); err != nil {
		return err
	}
	defer o.FinishFinal()
	return o.pub.VerifyDigest(o.alg, o.hash.Sum(nil), signature)
}

// RSAKeyPairGenMechanism implements CKM_RSA_PKCS_KEY_PAIR_GEN,
// completing original_source's unconditional-error
// RsaPKCSOperation::generate_keypair (spec.md §5 supplement, §9 Open
// Question) via provider.GenerateRSAKeyPair.
type RSAKeyPairGenMechanism struct {
	mechanism.Base
	info mechanism.Info
}

func NewRSAKeyPairGenMechanism(minBits, maxBits uint64) *RSAKeyPairGenMechanism {
	return &RSAKeyPairGenMechanism{info: mechanism.Info{
		MinKeySize: minBits,
		MaxKeySize: maxBits,
		Flags:      pkcs11.CKF_GENERATE_KEY_PAIR,
	}}
}

func (m *RSAKeyPairGenMechanism) Info() mechanism.Info { return m.info }

func (m *RSAKeyPairGenMechanism) GenerateKeyPair(
	r *rng.RNG, mech *pkcs11.Mechanism, pubTemplate, privTemplate []*pkcs11.Attribute,
) (pub, priv *object.Object, err error) {
	bits, err := rsaModulusBitsFromTemplate(pubTemplate)
	if err != nil {
		return nil, nil, err
	}
	if err := mechanism.CheckKeySize(m.info, uint64(bits)); err != nil {
		return nil, nil, err
	}
	if r == nil {
		return nil, nil, ckrv.RandomNoRng()
	}

	key, err := provider.GenerateRSAKeyPair(r, bits)
	if err != nil {
		return nil, nil, err
	}

	// CKA_MODULUS_BITS is a generate_key_pair-only sizing parameter: it
	// names no attribute on the resulting object, so it is consumed
	// above and never forwarded to the factory.
	pubForced := []*pkcs11.Attribute{
		rawAttr(attribute.FromUlong(pkcs11.CKA_CLASS, uint64(pkcs11.CKO_PUBLIC_KEY))),
		rawAttr(attribute.FromUlong(pkcs11.CKA_KEY_TYPE, uint64(pkcs11.CKK_RSA))),
		rawAttr(attribute.FromBytes(pkcs11.CKA_MODULUS, key.N.Bytes())),
		rawAttr(attribute.FromBytes(pkcs11.CKA_PUBLIC_EXPONENT, big.NewInt(int64(key.E)).Bytes())),
	}
	pubAttrs, err := mergeForced(pubForced, withoutModulusBits(pubTemplate))
	if err != nil {
		return nil, nil, err
	}
	pubObj, err := object.NewRSAPublicKeyFactory().Create(0, pubAttrs)
	if err != nil {
		return nil, nil, err
	}
	object.DefaultKeyAttributes(pubObj, uint64(mech.Mechanism))

	privForced := []*pkcs11.Attribute{
		rawAttr(attribute.FromUlong(pkcs11.CKA_CLASS, uint64(pkcs11.CKO_PRIVATE_KEY))),
		rawAttr(attribute.FromUlong(pkcs11.CKA_KEY_TYPE, uint64(pkcs11.CKK_RSA))),
		rawAttr(attribute.FromBytes(pkcs11.CKA_MODULUS, key.N.Bytes())),
		rawAttr(attribute.FromBytes(pkcs11.CKA_PUBLIC_EXPONENT, big.NewInt(int64(key.E)).Bytes())),
		rawAttr(attribute.FromBytes(pkcs11.CKA_PRIVATE_EXPONENT, key.D.Bytes())),
		rawAttr(attribute.FromBytes(pkcs11.CKA_PRIME_1, key.Primes[0].Bytes())),
		rawAttr(attribute.FromBytes(pkcs11.CKA_PRIME_2, key.Primes[1].Bytes())),
		rawAttr(attribute.FromBytes(pkcs11.CKA_EXPONENT_1, key.Precomputed.Dp.Bytes())),
		rawAttr(attribute.FromBytes(pkcs11.CKA_EXPONENT_2, key.Precomputed.Dq.Bytes())),
		rawAttr(attribute.FromBytes(pkcs11.CKA_COEFFICIENT, key.Precomputed.Qinv.Bytes())),
	}
	privAttrs, err := mergeForced(privForced, privTemplate)
	if err != nil {
		return nil, nil, err
	}
	privObj, err := object.NewRSAPrivateKeyFactory().Create(1, privAttrs)
	if err != nil {
		return nil, nil, err
	}
	object.DefaultKeyAttributes(privObj, uint64(mech.Mechanism))

	return pubObj, privObj, nil
}

func withoutModulusBits(template []*pkcs11.Attribute) []*pkcs11.Attribute {
	out := make([]*pkcs11.Attribute, 0, len(template))
	for _, a := range template {
		if a.Type != pkcs11.CKA_MODULUS_BITS {
			out = append(out, a)
		}
	}
	return out
}

func rsaModulusBitsFromTemplate(pubTemplate []*pkcs11.Attribute) (int, error) {
	for _, a := range pubTemplate {
		if a.Type == pkcs11.CKA_MODULUS_BITS {
			if len(a.Value) != attribute.ULongSize {
				return 0, ckrv.AttributeValueInvalid()
			}
			var n uint64
			for i := 0; i < attribute.ULongSize; i++ {
				n |= uint64(a.Value[i]) << (8 * i)
			}
			return int(n), nil
		}
	}
	return 0, ckrv.TemplateIncomplete()
}
