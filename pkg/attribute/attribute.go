// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package attribute implements the typed PKCS#11 attribute algebra: the
// (id, typed value) pairs that make up object templates, coerced from and
// to the untyped (id, ptr, len) tuples the C ABI hands across.
package attribute

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/miekg/pkcs11"

	"github.com/lowRISC/kryoptic-go/pkg/ckrv"
)

// ULongSize is the width in bytes of a CK_ULONG on the platform this
// kernel targets (8 on every 64-bit Linux/macOS build, which is what this
// token is built for).
const ULongSize = 8

// Type is the declared variant of an attribute's value.
type Type int

const (
	BoolType Type = iota
	NumType
	StringType
	BytesType
	DateType
	IgnoreType
	DenyType
)

// Date is a PKCS#11 CK_DATE: year/month/day held as ints; the raw
// attribute value is the eight-digit "YYYYMMDD" string.
type Date struct {
	Year, Month, Day int
}

func (d Date) String() string {
	if d.Year == 0 && d.Month == 0 && d.Day == 0 {
		return ""
	}
	return fmt.Sprintf("%04d%02d%02d", d.Year, d.Month, d.Day)
}

// ParseDate parses an 8-digit YYYYMMDD string into a Date. An empty string
// yields the zero Date (the "default empty" CK_DATE).
func ParseDate(s string) (Date, error) {
	if s == "" {
		return Date{}, nil
	}
	if len(s) != 8 {
		return Date{}, ckrv.AttributeValueInvalid()
	}
	y, err1 := strconv.Atoi(s[0:4])
	m, err2 := strconv.Atoi(s[4:6])
	d, err3 := strconv.Atoi(s[6:8])
	if err1 != nil || err2 != nil || err3 != nil {
		return Date{}, ckrv.AttributeValueInvalid()
	}
	return Date{Year: y, Month: m, Day: d}, nil
}

// Attribute is a single (id, typed value) pair, keeping the raw octet
// representation alongside the typed value for direct C-ABI handoff.
type Attribute struct {
	id  uint
	typ Type
	raw []byte

	b bool
	n uint64
	s string
	d Date
}

// variantTable maps every CKA_* id this kernel understands to its declared
// variant. Unknown ids decode as Bytes, per spec.md §4.1.
var variantTable = map[uint]Type{
	pkcs11.CKA_CLASS:              NumType,
	pkcs11.CKA_KEY_TYPE:           NumType,
	pkcs11.CKA_TOKEN:              BoolType,
	pkcs11.CKA_PRIVATE:            BoolType,
	pkcs11.CKA_SENSITIVE:          BoolType,
	pkcs11.CKA_MODIFIABLE:         BoolType,
	pkcs11.CKA_COPYABLE:           BoolType,
	pkcs11.CKA_DESTROYABLE:        BoolType,
	pkcs11.CKA_EXTRACTABLE:        BoolType,
	pkcs11.CKA_LOCAL:              BoolType,
	pkcs11.CKA_ALWAYS_SENSITIVE:   BoolType,
	pkcs11.CKA_NEVER_EXTRACTABLE:  BoolType,
	pkcs11.CKA_ENCRYPT:            BoolType,
	pkcs11.CKA_DECRYPT:            BoolType,
	pkcs11.CKA_SIGN:               BoolType,
	pkcs11.CKA_VERIFY:             BoolType,
	pkcs11.CKA_WRAP:               BoolType,
	pkcs11.CKA_UNWRAP:             BoolType,
	pkcs11.CKA_DERIVE:             BoolType,
	pkcs11.CKA_TRUSTED:            BoolType,
	pkcs11.CKA_LABEL:              StringType,
	pkcs11.CKA_APPLICATION:        StringType,
	pkcs11.CKA_UNIQUE_ID:          StringType,
	pkcs11.CKA_VALUE:              BytesType,
	pkcs11.CKA_OBJECT_ID:          BytesType,
	pkcs11.CKA_MODULUS:            BytesType,
	pkcs11.CKA_PUBLIC_EXPONENT:    BytesType,
	pkcs11.CKA_PRIVATE_EXPONENT:   BytesType,
	pkcs11.CKA_PRIME_1:            BytesType,
	pkcs11.CKA_PRIME_2:            BytesType,
	pkcs11.CKA_EXPONENT_1:         BytesType,
	pkcs11.CKA_EXPONENT_2:         BytesType,
	pkcs11.CKA_COEFFICIENT:        BytesType,
	pkcs11.CKA_EC_PARAMS:          BytesType,
	pkcs11.CKA_EC_POINT:           BytesType,
	pkcs11.CKA_MODULUS_BITS:       NumType,
	pkcs11.CKA_VALUE_LEN:          NumType,
	pkcs11.CKA_VALUE_BITS:         NumType,
	pkcs11.CKA_KEY_GEN_MECHANISM:  NumType,
	pkcs11.CKA_START_DATE:         DateType,
	pkcs11.CKA_END_DATE:           DateType,
}

// nameTable is the reverse of variantTable's domain, giving each known id
// its canonical upper-case CKA_ name for serialization. It is built from a
// small hand-maintained list rather than reflection over the pkcs11
// package, since that package exposes no id->name lookup.
var nameTable = map[uint]string{
	pkcs11.CKA_CLASS:             "CKA_CLASS",
	pkcs11.CKA_KEY_TYPE:          "CKA_KEY_TYPE",
	pkcs11.CKA_TOKEN:             "CKA_TOKEN",
	pkcs11.CKA_PRIVATE:           "CKA_PRIVATE",
	pkcs11.CKA_SENSITIVE:         "CKA_SENSITIVE",
	pkcs11.CKA_MODIFIABLE:        "CKA_MODIFIABLE",
	pkcs11.CKA_COPYABLE:          "CKA_COPYABLE",
	pkcs11.CKA_DESTROYABLE:       "CKA_DESTROYABLE",
	pkcs11.CKA_EXTRACTABLE:       "CKA_EXTRACTABLE",
	pkcs11.CKA_LOCAL:             "CKA_LOCAL",
	pkcs11.CKA_ALWAYS_SENSITIVE:  "CKA_ALWAYS_SENSITIVE",
	pkcs11.CKA_NEVER_EXTRACTABLE: "CKA_NEVER_EXTRACTABLE",
	pkcs11.CKA_ENCRYPT:           "CKA_ENCRYPT",
	pkcs11.CKA_DECRYPT:           "CKA_DECRYPT",
	pkcs11.CKA_SIGN:              "CKA_SIGN",
	pkcs11.CKA_VERIFY:            "CKA_VERIFY",
	pkcs11.CKA_WRAP:              "CKA_WRAP",
	pkcs11.CKA_UNWRAP:            "CKA_UNWRAP",
	pkcs11.CKA_DERIVE:            "CKA_DERIVE",
	pkcs11.CKA_TRUSTED:           "CKA_TRUSTED",
	pkcs11.CKA_LABEL:             "CKA_LABEL",
	pkcs11.CKA_APPLICATION:       "CKA_APPLICATION",
	pkcs11.CKA_UNIQUE_ID:         "CKA_UNIQUE_ID",
	pkcs11.CKA_VALUE:             "CKA_VALUE",
	pkcs11.CKA_OBJECT_ID:         "CKA_OBJECT_ID",
	pkcs11.CKA_MODULUS:           "CKA_MODULUS",
	pkcs11.CKA_PUBLIC_EXPONENT:   "CKA_PUBLIC_EXPONENT",
	pkcs11.CKA_PRIVATE_EXPONENT:  "CKA_PRIVATE_EXPONENT",
	pkcs11.CKA_PRIME_1:           "CKA_PRIME_1",
	pkcs11.CKA_PRIME_2:           "CKA_PRIME_2",
	pkcs11.CKA_EXPONENT_1:        "CKA_EXPONENT_1",
	pkcs11.CKA_EXPONENT_2:        "CKA_EXPONENT_2",
	pkcs11.CKA_COEFFICIENT:       "CKA_COEFFICIENT",
	pkcs11.CKA_EC_PARAMS:         "CKA_EC_PARAMS",
	pkcs11.CKA_EC_POINT:          "CKA_EC_POINT",
	pkcs11.CKA_MODULUS_BITS:      "CKA_MODULUS_BITS",
	pkcs11.CKA_VALUE_LEN:         "CKA_VALUE_LEN",
	pkcs11.CKA_VALUE_BITS:        "CKA_VALUE_BITS",
	pkcs11.CKA_KEY_GEN_MECHANISM: "CKA_KEY_GEN_MECHANISM",
	pkcs11.CKA_START_DATE:        "CKA_START_DATE",
	pkcs11.CKA_END_DATE:          "CKA_END_DATE",
}

var nameToID = func() map[string]uint {
	m := make(map[string]uint, len(nameTable))
	for id, name := range nameTable {
		m[name] = id
	}
	return m
}()

// VariantOf reports the declared variant for id, and whether id is known.
func VariantOf(id uint) (Type, bool) {
	t, ok := variantTable[id]
	return t, ok
}

// NameToID resolves a canonical CKA_* name (as found in a persisted
// token) back to its numeric id and variant.
func NameToID(name string) (uint, Type, error) {
	id, ok := nameToID[name]
	if !ok {
		return 0, 0, ckrv.Newf(pkcs11.CKR_ATTRIBUTE_VALUE_INVALID, "unknown attribute name %q", name)
	}
	t, _ := VariantOf(id)
	return id, t, nil
}

func FromBool(id uint, v bool) Attribute {
	raw := []byte{0}
	if v {
		raw[0] = 1
	}
	return Attribute{id: id, typ: BoolType, raw: raw, b: v}
}

func FromUlong(id uint, v uint64) Attribute {
	raw := make([]byte, ULongSize)
	for i := 0; i < ULongSize; i++ {
		raw[i] = byte(v >> (8 * i))
	}
	return Attribute{id: id, typ: NumType, raw: raw, n: v}
}

func FromString(id uint, v string) Attribute {
	return Attribute{id: id, typ: StringType, raw: []byte(v), s: v}
}

func FromBytes(id uint, v []byte) Attribute {
	raw := make([]byte, len(v))
	copy(raw, v)
	return Attribute{id: id, typ: BytesType, raw: raw}
}

func FromDate(id uint, v Date) Attribute {
	s := v.String()
	return Attribute{id: id, typ: DateType, raw: []byte(s), d: v}
}

// FromCKAttribute decodes a raw (id, value) tuple as delivered by the
// C ABI into a typed Attribute. Unknown ids are accepted as Bytes.
func FromCKAttribute(a *pkcs11.Attribute) (Attribute, error) {
	typ, known := VariantOf(a.Type)
	if !known {
		typ = BytesType
	}
	switch typ {
	case BoolType:
		if len(a.Value) != 1 {
			return Attribute{}, ckrv.AttributeValueInvalid()
		}
		return FromBool(a.Type, a.Value[0] != 0), nil
	case NumType:
		if len(a.Value) != ULongSize {
			return Attribute{}, ckrv.AttributeValueInvalid()
		}
		var n uint64
		for i := 0; i < ULongSize; i++ {
			n |= uint64(a.Value[i]) << (8 * i)
		}
		return FromUlong(a.Type, n), nil
	case StringType:
		return FromString(a.Type, string(a.Value)), nil
	case DateType:
		if len(a.Value) == 0 {
			return FromDate(a.Type, Date{}), nil
		}
		if len(a.Value) != 8 {
			return Attribute{}, ckrv.AttributeValueInvalid()
		}
		date, err := ParseDate(string(a.Value))
		if err != nil {
			return Attribute{}, err
		}
		return FromDate(a.Type, date), nil
	default:
		return FromBytes(a.Type, a.Value), nil
	}
}

func (a Attribute) ID() uint      { return a.id }
func (a Attribute) Type() Type    { return a.typ }
func (a Attribute) Value() []byte { return a.raw }

func (a Attribute) ToBool() (bool, error) {
	if a.typ != BoolType {
		return false, ckrv.AttributeTypeInvalid()
	}
	return a.b, nil
}

func (a Attribute) ToUlong() (uint64, error) {
	if a.typ != NumType {
		return 0, ckrv.AttributeTypeInvalid()
	}
	return a.n, nil
}

func (a Attribute) ToString() (string, error) {
	if a.typ != StringType {
		return "", ckrv.AttributeTypeInvalid()
	}
	return a.s, nil
}

func (a Attribute) ToBytes() ([]byte, error) {
	if a.typ != BytesType {
		return nil, ckrv.AttributeTypeInvalid()
	}
	return a.raw, nil
}

func (a Attribute) ToDate() (Date, error) {
	if a.typ != DateType {
		return Date{}, ckrv.AttributeTypeInvalid()
	}
	return a.d, nil
}

// Match reports whether a and ck describe the same attribute id with a
// byte-equal value.
func (a Attribute) Match(ck *pkcs11.Attribute) bool {
	if a.id != ck.Type {
		return false
	}
	return bytes.Equal(a.raw, ck.Value)
}

// Name returns the stable lower-case textual name used for log output
// (e.g. "cka_class"); canonical serialization uses the upper-case form
// from NameToID's domain instead.
func (a Attribute) Name() string {
	if name, ok := nameTable[a.id]; ok {
		return strings.ToLower(name)
	}
	return fmt.Sprintf("cka_0x%x", a.id)
}

// CanonicalName returns the upper-case CKA_* name used in persisted form.
func (a Attribute) CanonicalName() string {
	if name, ok := nameTable[a.id]; ok {
		return name
	}
	return fmt.Sprintf("CKA_0x%X", a.id)
}

// NeutralValue encodes the attribute into a persistence-neutral value:
// bool, uint64, string, base64 string (bytes), or an ISO-ish YYYYMMDD
// date string (empty for the default-empty date). Ignore/Deny attributes
// encode as nil and are expected to be omitted by the caller.
func (a Attribute) NeutralValue(encodeBytes func([]byte) string) interface{} {
	switch a.typ {
	case BoolType:
		return a.b
	case NumType:
		return a.n
	case StringType:
		return a.s
	case BytesType:
		return encodeBytes(a.raw)
	case DateType:
		return a.d.String()
	default:
		return nil
	}
}

// NewUniqueID mints a fresh CKA_UNIQUE_ID attribute with a random UUID,
// mirroring original_source's use of the uuid crate's new_v4().
func NewUniqueID() Attribute {
	return FromString(pkcs11.CKA_UNIQUE_ID, uuid.NewString())
}
