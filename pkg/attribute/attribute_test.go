// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package attribute

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/miekg/pkcs11"

	"github.com/lowRISC/kryoptic-go/pkg/ckrv"
)

func TestFromCKAttributeBool(t *testing.T) {
	a, err := FromCKAttribute(&pkcs11.Attribute{Type: pkcs11.CKA_TOKEN, Value: []byte{1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := a.ToBool()
	if err != nil || !b {
		t.Fatalf("ToBool() = %v, %v, want true, nil", b, err)
	}
	if _, err := a.ToUlong(); ckrv.RV(err) != pkcs11.CKR_ATTRIBUTE_TYPE_INVALID {
		t.Fatalf("ToUlong() on a Bool attribute should fail with AttributeTypeInvalid, got %v", err)
	}
}

func TestFromCKAttributeBoolBadLength(t *testing.T) {
	_, err := FromCKAttribute(&pkcs11.Attribute{Type: pkcs11.CKA_TOKEN, Value: []byte{1, 2}})
	if ckrv.RV(err) != pkcs11.CKR_ATTRIBUTE_VALUE_INVALID {
		t.Fatalf("want AttributeValueInvalid, got %v", err)
	}
}

func TestFromCKAttributeNumRoundTrip(t *testing.T) {
	want := uint64(65537)
	a := FromUlong(pkcs11.CKA_MODULUS_BITS, want)
	ck := &pkcs11.Attribute{Type: a.ID(), Value: a.Value()}
	got, err := FromCKAttribute(ck)
	if err != nil {
		t.Fatal(err)
	}
	n, err := got.ToUlong()
	if err != nil || n != want {
		t.Fatalf("ToUlong() = %v, %v, want %v, nil", n, err, want)
	}
}

func TestUnknownAttributeDecodesAsBytes(t *testing.T) {
	a, err := FromCKAttribute(&pkcs11.Attribute{Type: 0xDEADBEEF, Value: []byte("hi")})
	if err != nil {
		t.Fatal(err)
	}
	if a.Type() != BytesType {
		t.Fatalf("unknown attribute id should decode as Bytes, got %v", a.Type())
	}
}

func TestMatch(t *testing.T) {
	a := FromString(pkcs11.CKA_LABEL, "my-key")
	if !a.Match(&pkcs11.Attribute{Type: pkcs11.CKA_LABEL, Value: []byte("my-key")}) {
		t.Fatal("expected match on identical id/value")
	}
	if a.Match(&pkcs11.Attribute{Type: pkcs11.CKA_LABEL, Value: []byte("other")}) {
		t.Fatal("expected no match on differing value")
	}
}

func TestDateRoundTrip(t *testing.T) {
	a := FromDate(pkcs11.CKA_START_DATE, Date{Year: 2024, Month: 1, Day: 2})
	if got := a.Value(); cmp.Diff(string(got), "20240102") != "" {
		t.Fatalf("Date raw encoding = %q, want 20240102", got)
	}
	d, err := ParseDate("20240102")
	if err != nil || d != (Date{2024, 1, 2}) {
		t.Fatalf("ParseDate() = %v, %v", d, err)
	}
	if empty, err := ParseDate(""); err != nil || empty != (Date{}) {
		t.Fatalf("ParseDate(\"\") = %v, %v, want zero Date", empty, err)
	}
}

func TestNeutralValueBytesUsesEncoder(t *testing.T) {
	a := FromBytes(pkcs11.CKA_VALUE, []byte{1, 2, 3})
	got := a.NeutralValue(func(b []byte) string { return "encoded" })
	if got != "encoded" {
		t.Fatalf("NeutralValue() = %v, want \"encoded\"", got)
	}
}

func TestNameToID(t *testing.T) {
	id, typ, err := NameToID("CKA_UNIQUE_ID")
	if err != nil || id != pkcs11.CKA_UNIQUE_ID || typ != StringType {
		t.Fatalf("NameToID(CKA_UNIQUE_ID) = %v, %v, %v", id, typ, err)
	}
	if _, _, err := NameToID("CKA_NOT_A_THING"); ckrv.RV(err) != pkcs11.CKR_ATTRIBUTE_VALUE_INVALID {
		t.Fatalf("unknown name should fail with AttributeValueInvalid, got %v", err)
	}
}
