// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package object

import (
	"encoding/asn1"
	"testing"

	"github.com/miekg/pkcs11"

	"github.com/lowRISC/kryoptic-go/pkg/attribute"
	"github.com/lowRISC/kryoptic-go/pkg/ckrv"
)

func asn1Marshal(oid asn1.ObjectIdentifier) ([]byte, error) {
	return asn1.Marshal(oid)
}

func rawAttr(id uint, v attribute.Attribute) *pkcs11.Attribute {
	return &pkcs11.Attribute{Type: id, Value: v.Value()}
}

func newDataObjectTemplate() []*pkcs11.Attribute {
	return []*pkcs11.Attribute{
		rawAttr(pkcs11.CKA_CLASS, attribute.FromUlong(pkcs11.CKA_CLASS, uint64(pkcs11.CKO_DATA))),
		rawAttr(pkcs11.CKA_TOKEN, attribute.FromBool(pkcs11.CKA_TOKEN, true)),
		rawAttr(pkcs11.CKA_APPLICATION, attribute.FromString(pkcs11.CKA_APPLICATION, "t")),
		rawAttr(pkcs11.CKA_VALUE, attribute.FromBytes(pkcs11.CKA_VALUE, []byte{1, 2, 3})),
	}
}

func TestDataObjectCreateRoundTrip(t *testing.T) {
	f := NewDataObjectFactory()
	obj, err := f.Create(1, newDataObjectTemplate())
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if !obj.IsToken() {
		t.Fatal("expected CKA_TOKEN=true")
	}
	if uid, err := obj.GetAttrAsString(pkcs11.CKA_UNIQUE_ID); err != nil || uid == "" {
		t.Fatalf("expected non-empty CKA_UNIQUE_ID, got %q, %v", uid, err)
	}
	val, err := obj.GetAttrAsBytes(pkcs11.CKA_VALUE)
	if err != nil || string(val) != "\x01\x02\x03" {
		t.Fatalf("CKA_VALUE round trip failed: %v, %v", val, err)
	}
}

func TestDataObjectCreateMissingRequired(t *testing.T) {
	f := NewDataObjectFactory()
	tmpl := []*pkcs11.Attribute{
		rawAttr(pkcs11.CKA_CLASS, attribute.FromUlong(pkcs11.CKA_CLASS, uint64(pkcs11.CKO_DATA))),
	}
	_, err := f.Create(1, tmpl)
	if ckrv.RV(err) != pkcs11.CKR_TEMPLATE_INCOMPLETE {
		t.Fatalf("want TemplateIncomplete, got %v", err)
	}
}

func TestDataObjectCreateDuplicateAttr(t *testing.T) {
	f := NewDataObjectFactory()
	tmpl := append(newDataObjectTemplate(),
		rawAttr(pkcs11.CKA_APPLICATION, attribute.FromString(pkcs11.CKA_APPLICATION, "dup")))
	_, err := f.Create(1, tmpl)
	if ckrv.RV(err) != pkcs11.CKR_TEMPLATE_INCONSISTENT {
		t.Fatalf("want TemplateInconsistent, got %v", err)
	}
}

func TestDataObjectCreateUnknownAttr(t *testing.T) {
	f := NewDataObjectFactory()
	tmpl := append(newDataObjectTemplate(), rawAttr(pkcs11.CKA_TRUSTED, attribute.FromBool(pkcs11.CKA_TRUSTED, true)))
	_, err := f.Create(1, tmpl)
	if ckrv.RV(err) != pkcs11.CKR_ATTRIBUTE_VALUE_INVALID {
		t.Fatalf("want AttributeValueInvalid, got %v", err)
	}
}

// TestSensitiveReadOut reproduces spec.md §8 scenario 5: a private RSA
// object with SENSITIVE=true hides PRIVATE_EXPONENT but still reports
// MODULUS's length correctly.
func TestSensitiveReadOut(t *testing.T) {
	f := NewRSAPrivateKeyFactory()
	modulus := make([]byte, 256)
	modulus[0] = 0x80
	tmpl := []*pkcs11.Attribute{
		rawAttr(pkcs11.CKA_CLASS, attribute.FromUlong(pkcs11.CKA_CLASS, uint64(pkcs11.CKO_PRIVATE_KEY))),
		rawAttr(pkcs11.CKA_KEY_TYPE, attribute.FromUlong(pkcs11.CKA_KEY_TYPE, uint64(pkcs11.CKK_RSA))),
		rawAttr(pkcs11.CKA_SENSITIVE, attribute.FromBool(pkcs11.CKA_SENSITIVE, true)),
		rawAttr(pkcs11.CKA_MODULUS, attribute.FromBytes(pkcs11.CKA_MODULUS, modulus)),
		rawAttr(pkcs11.CKA_PUBLIC_EXPONENT, attribute.FromBytes(pkcs11.CKA_PUBLIC_EXPONENT, []byte{1, 0, 1})),
		rawAttr(pkcs11.CKA_PRIVATE_EXPONENT, attribute.FromBytes(pkcs11.CKA_PRIVATE_EXPONENT, make([]byte, 256))),
		rawAttr(pkcs11.CKA_PRIME_1, attribute.FromBytes(pkcs11.CKA_PRIME_1, make([]byte, 128))),
		rawAttr(pkcs11.CKA_PRIME_2, attribute.FromBytes(pkcs11.CKA_PRIME_2, make([]byte, 128))),
		rawAttr(pkcs11.CKA_EXPONENT_1, attribute.FromBytes(pkcs11.CKA_EXPONENT_1, make([]byte, 128))),
		rawAttr(pkcs11.CKA_EXPONENT_2, attribute.FromBytes(pkcs11.CKA_EXPONENT_2, make([]byte, 128))),
		rawAttr(pkcs11.CKA_COEFFICIENT, attribute.FromBytes(pkcs11.CKA_COEFFICIENT, make([]byte, 128))),
	}
	obj, err := f.Create(1, tmpl)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	modEntry := &TemplateEntry{ID: pkcs11.CKA_MODULUS, BufLen: -1}
	privEntry := &TemplateEntry{ID: pkcs11.CKA_PRIVATE_EXPONENT, BufLen: -1}
	err = obj.FillTemplate([]*TemplateEntry{modEntry, privEntry})
	if ckrv.RV(err) != pkcs11.CKR_ATTRIBUTE_SENSITIVE {
		t.Fatalf("want AttributeSensitive, got %v", err)
	}
	if modEntry.Used != 256 {
		t.Fatalf("MODULUS length = %d, want 256", modEntry.Used)
	}
	if privEntry.Used != UnavailableLength {
		t.Fatalf("PRIVATE_EXPONENT length = %d, want UnavailableLength", privEntry.Used)
	}
}

func TestFillTemplateBufferTooSmall(t *testing.T) {
	f := NewDataObjectFactory()
	obj, err := f.Create(1, newDataObjectTemplate())
	if err != nil {
		t.Fatal(err)
	}
	entry := &TemplateEntry{ID: pkcs11.CKA_VALUE, BufLen: 1, Out: make([]byte, 1)}
	err = obj.FillTemplate([]*TemplateEntry{entry})
	if ckrv.RV(err) != pkcs11.CKR_BUFFER_TOO_SMALL {
		t.Fatalf("want BufferTooSmall, got %v", err)
	}
	if entry.Used != UnavailableLength {
		t.Fatalf("Used = %d, want UnavailableLength", entry.Used)
	}
}

func TestFillTemplateMissingAttr(t *testing.T) {
	f := NewDataObjectFactory()
	obj, err := f.Create(1, newDataObjectTemplate())
	if err != nil {
		t.Fatal(err)
	}
	entry := &TemplateEntry{ID: pkcs11.CKA_START_DATE, BufLen: -1}
	err = obj.FillTemplate([]*TemplateEntry{entry})
	if ckrv.RV(err) != pkcs11.CKR_ATTRIBUTE_TYPE_INVALID {
		t.Fatalf("want AttributeTypeInvalid, got %v", err)
	}
}

func TestECMontgomeryPublicFactoryValidatesPointSize(t *testing.T) {
	f := NewECMontgomeryPublicKeyFactory()
	oidDER, _ := asn1Marshal(X25519OID)
	tmpl := []*pkcs11.Attribute{
		rawAttr(pkcs11.CKA_CLASS, attribute.FromUlong(pkcs11.CKA_CLASS, uint64(pkcs11.CKO_PUBLIC_KEY))),
		rawAttr(pkcs11.CKA_KEY_TYPE, attribute.FromUlong(pkcs11.CKA_KEY_TYPE, uint64(pkcs11.CKK_EC_MONTGOMERY))),
		rawAttr(pkcs11.CKA_EC_PARAMS, attribute.FromBytes(pkcs11.CKA_EC_PARAMS, oidDER)),
		rawAttr(pkcs11.CKA_EC_POINT, attribute.FromBytes(pkcs11.CKA_EC_POINT, make([]byte, 31))),
	}
	_, err := f.Create(1, tmpl)
	if ckrv.RV(err) != pkcs11.CKR_ATTRIBUTE_VALUE_INVALID {
		t.Fatalf("want AttributeValueInvalid for wrong point size, got %v", err)
	}

	tmpl[3] = rawAttr(pkcs11.CKA_EC_POINT, attribute.FromBytes(pkcs11.CKA_EC_POINT, make([]byte, 32)))
	obj, err := f.Create(1, tmpl)
	if err != nil {
		t.Fatalf("Create() with correct point size failed: %v", err)
	}
	if obj == nil {
		t.Fatal("expected non-nil object")
	}
}
