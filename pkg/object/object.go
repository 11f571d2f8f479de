// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package object implements the PKCS#11 object model: an attribute bag
// plus the sensitivity/flag predicates and template operations defined in
// spec.md §4.2, grounded on original_source/src/object.rs.
package object

import (
	"github.com/miekg/pkcs11"

	"github.com/lowRISC/kryoptic-go/pkg/attribute"
	"github.com/lowRISC/kryoptic-go/pkg/ckrv"
)

// Object is a runtime-handled bag of attributes, at most one per id.
type Object struct {
	handle     uint64
	attributes []attribute.Attribute
}

// New creates an empty object bound to handle. Factories are responsible
// for populating its attributes via Create.
func New(handle uint64) *Object {
	return &Object{handle: handle}
}

func (o *Object) Handle() uint64 { return o.handle }

func (o *Object) Attributes() []attribute.Attribute { return o.attributes }

// boolAttr returns the value of a boolean attribute, or def if absent or
// not a Bool.
func (o *Object) boolAttr(id uint, def bool) bool {
	for _, a := range o.attributes {
		if a.ID() == id {
			if b, err := a.ToBool(); err == nil {
				return b
			}
			return def
		}
	}
	return def
}

func (o *Object) IsToken() bool       { return o.boolAttr(pkcs11.CKA_TOKEN, false) }
func (o *Object) IsPrivate() bool     { return o.boolAttr(pkcs11.CKA_PRIVATE, true) }
func (o *Object) IsSensitive() bool   { return o.boolAttr(pkcs11.CKA_SENSITIVE, true) }
func (o *Object) IsModifiable() bool  { return o.boolAttr(pkcs11.CKA_MODIFIABLE, true) }
func (o *Object) IsDestroyable() bool { return o.boolAttr(pkcs11.CKA_DESTROYABLE, false) }
func (o *Object) IsExtractable() bool { return o.boolAttr(pkcs11.CKA_EXTRACTABLE, false) }

// SetAttr replaces any existing attribute with the same id, or appends.
func (o *Object) SetAttr(a attribute.Attribute) {
	for i, elem := range o.attributes {
		if elem.ID() == a.ID() {
			o.attributes[i] = a
			return
		}
	}
	o.attributes = append(o.attributes, a)
}

func (o *Object) getAttr(id uint) (attribute.Attribute, bool) {
	for _, a := range o.attributes {
		if a.ID() == id {
			return a, true
		}
	}
	return attribute.Attribute{}, false
}

func (o *Object) GetAttrAsBool(id uint) (bool, error) {
	a, ok := o.getAttr(id)
	if !ok {
		return false, ckrv.Newf(pkcs11.CKR_ATTRIBUTE_TYPE_INVALID, "attribute %d not found", id)
	}
	return a.ToBool()
}

func (o *Object) GetAttrAsUlong(id uint) (uint64, error) {
	a, ok := o.getAttr(id)
	if !ok {
		return 0, ckrv.Newf(pkcs11.CKR_ATTRIBUTE_TYPE_INVALID, "attribute %d not found", id)
	}
	return a.ToUlong()
}

func (o *Object) GetAttrAsString(id uint) (string, error) {
	a, ok := o.getAttr(id)
	if !ok {
		return "", ckrv.Newf(pkcs11.CKR_ATTRIBUTE_TYPE_INVALID, "attribute %d not found", id)
	}
	return a.ToString()
}

func (o *Object) GetAttrAsBytes(id uint) ([]byte, error) {
	a, ok := o.getAttr(id)
	if !ok {
		return nil, ckrv.Newf(pkcs11.CKR_ATTRIBUTE_TYPE_INVALID, "attribute %d not found", id)
	}
	return a.ToBytes()
}

// CheckOrSetAttr sets a if absent, or verifies the existing value of a's
// id is byte-identical to a. Returns false on contradiction (used by
// keypair generation to force CLASS/KEY_TYPE without silently
// overwriting a user-supplied, conflicting value).
func (o *Object) CheckOrSetAttr(a attribute.Attribute) bool {
	for i, elem := range o.attributes {
		if elem.ID() == a.ID() {
			ck := &pkcs11.Attribute{Type: a.ID(), Value: a.Value()}
			if o.attributes[i].Match(ck) {
				return true
			}
			return false
		}
	}
	o.SetAttr(a)
	return true
}

// MatchTemplate reports whether every entry of template has a by-id,
// by-value equal attribute on o.
func (o *Object) MatchTemplate(template []*pkcs11.Attribute) bool {
	for _, ck := range template {
		found := false
		for _, a := range o.attributes {
			if a.Match(ck) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// sensitiveByKeyType lists the attribute ids hidden from read-out for each
// CKK_* key type, per spec.md §3.
var sensitiveByKeyType = map[uint64][]uint{
	uint64(pkcs11.CKK_RSA): {
		pkcs11.CKA_PRIVATE_EXPONENT,
		pkcs11.CKA_PRIME_1,
		pkcs11.CKA_PRIME_2,
		pkcs11.CKA_EXPONENT_1,
		pkcs11.CKA_EXPONENT_2,
		pkcs11.CKA_COEFFICIENT,
	},
	uint64(pkcs11.CKK_EC):            {pkcs11.CKA_VALUE},
	uint64(pkcs11.CKK_EC_EDWARDS):    {pkcs11.CKA_VALUE},
	uint64(pkcs11.CKK_EC_MONTGOMERY): {pkcs11.CKA_VALUE},
	uint64(pkcs11.CKK_DH):            {pkcs11.CKA_VALUE, pkcs11.CKA_VALUE_BITS},
	uint64(pkcs11.CKK_X9_42_DH):      {pkcs11.CKA_VALUE, pkcs11.CKA_VALUE_BITS},
	uint64(pkcs11.CKK_DSA):           {pkcs11.CKA_VALUE},
	uint64(pkcs11.CKK_GENERIC_SECRET): {
		pkcs11.CKA_VALUE,
		pkcs11.CKA_VALUE_LEN,
	},
}

// needsSensitivityCheck returns the sensitive-attribute set for o's key
// type, if o is a private or secret key object at all.
func (o *Object) needsSensitivityCheck() []uint {
	class, err := o.GetAttrAsUlong(pkcs11.CKA_CLASS)
	if err != nil {
		return nil
	}
	if class != uint64(pkcs11.CKO_PRIVATE_KEY) && class != uint64(pkcs11.CKO_SECRET_KEY) {
		return nil
	}
	kt, err := o.GetAttrAsUlong(pkcs11.CKA_KEY_TYPE)
	if err != nil {
		return nil
	}
	return sensitiveByKeyType[kt]
}

func contains(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// isSensitiveAttr reports whether id must be hidden from fill_template
// given o's sensitivity/extractability flags, per spec.md §3.
func (o *Object) isSensitiveAttr(id uint, sense []uint) bool {
	if !contains(sense, id) {
		return false
	}
	return o.IsSensitive() || !o.IsExtractable()
}

// UnavailableLength marks an entry whose value could not be produced.
const UnavailableLength = ^uint64(0) // CK_UNAVAILABLE_INFORMATION

// TemplateEntry is the in/out view fill_template operates on: BufLen < 0
// means "null buffer, report required length only".
type TemplateEntry struct {
	ID       uint
	BufLen   int // -1 for a null buffer pointer
	Out      []byte
	Used     uint64
}

// FillTemplate implements spec.md §4.2's per-entry fill algorithm: it
// writes each TemplateEntry's Out and Used in place, visits every entry,
// and returns the highest-priority error code across all entries
// (sensitivity > type-invalid > buffer-too-small), or nil.
func (o *Object) FillTemplate(entries []*TemplateEntry) error {
	sense := o.needsSensitivityCheck()
	var rv error
	priority := func(e error) int {
		switch ckrv.RV(e) {
		case pkcs11.CKR_ATTRIBUTE_SENSITIVE:
			return 3
		case pkcs11.CKR_ATTRIBUTE_TYPE_INVALID:
			return 2
		case pkcs11.CKR_BUFFER_TOO_SMALL:
			return 1
		default:
			return 0
		}
	}
	record := func(e error) {
		if rv == nil || priority(e) > priority(rv) {
			rv = e
		}
	}

	for _, entry := range entries {
		if sense != nil && o.isSensitiveAttr(entry.ID, sense) {
			entry.Used = UnavailableLength
			record(ckrv.AttributeSensitive())
			continue
		}
		a, ok := o.getAttr(entry.ID)
		if !ok {
			entry.Used = UnavailableLength
			record(ckrv.AttributeTypeInvalid())
			continue
		}
		val := a.Value()
		if entry.BufLen < 0 {
			entry.Used = uint64(len(val))
			continue
		}
		if entry.BufLen < len(val) {
			entry.Used = UnavailableLength
			record(ckrv.BufferTooSmall())
			continue
		}
		copy(entry.Out, val)
		entry.Used = uint64(len(val))
	}
	return rv
}
