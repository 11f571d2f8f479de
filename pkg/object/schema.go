// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package object

import (
	"github.com/miekg/pkcs11"

	"github.com/lowRISC/kryoptic-go/pkg/attribute"
	"github.com/lowRISC/kryoptic-go/pkg/ckrv"
)

// ObjectAttr is one schema entry for a factory: it names the recognized
// attribute id, its default value, and the checks performed at create
// time, per spec.md §4.3.
type ObjectAttr struct {
	Default              attribute.Attribute
	RequiredOnCreate     bool
	SettableOnlyOnCreate bool
	Sensitive            bool
	Unchangeable         bool
	DefaultIfAbsent      bool
	AlwaysRequired       bool

	present bool
}

func (s ObjectAttr) id() uint { return s.Default.ID() }

// Schema is an ordered list of ObjectAttr. Factories build a Schema by
// concatenating module-scope fragments (see CommonObjectAttrs and
// friends below); a later push overwrites an earlier entry with the same
// id, which is how e.g. a private-key factory flips CKA_PRIVATE's
// default to true.
type Schema []ObjectAttr

// Push appends entry, replacing any existing entry for the same id.
func (s Schema) Push(entry ObjectAttr) Schema {
	for i := range s {
		if s[i].id() == entry.id() {
			s[i] = entry
			return s
		}
	}
	return append(s, entry)
}

func (s Schema) clone() Schema {
	out := make(Schema, len(s))
	copy(out, s)
	return out
}

// CommonObjectAttrs is the "common object" schema fragment shared by
// every object class.
func CommonObjectAttrs() Schema {
	return Schema{
		{Default: attribute.FromUlong(pkcs11.CKA_CLASS, 0), RequiredOnCreate: true},
	}
}

// CommonStorageAttrs is the "common storage" fragment shared by every
// persistable object.
func CommonStorageAttrs() Schema {
	return Schema{
		{Default: attribute.FromBool(pkcs11.CKA_TOKEN, false), DefaultIfAbsent: true},
		{Default: attribute.FromBool(pkcs11.CKA_PRIVATE, false), DefaultIfAbsent: true},
		{Default: attribute.FromBool(pkcs11.CKA_MODIFIABLE, true), DefaultIfAbsent: true},
		{Default: attribute.FromString(pkcs11.CKA_LABEL, "")},
		{Default: attribute.FromBool(pkcs11.CKA_COPYABLE, true), DefaultIfAbsent: true},
		{Default: attribute.FromBool(pkcs11.CKA_DESTROYABLE, true), DefaultIfAbsent: true},
		{Default: attribute.FromString(pkcs11.CKA_UNIQUE_ID, ""), RequiredOnCreate: true, Unchangeable: true},
	}
}

// CommonKeyAttrs is the "common key" fragment shared by every key object.
func CommonKeyAttrs() Schema {
	return Schema{
		{Default: attribute.FromUlong(pkcs11.CKA_KEY_TYPE, 0), RequiredOnCreate: true, Unchangeable: true},
		{Default: attribute.FromBool(pkcs11.CKA_DERIVE, false), DefaultIfAbsent: true},
		{Default: attribute.FromBool(pkcs11.CKA_LOCAL, false), DefaultIfAbsent: true, Unchangeable: true},
		{Default: attribute.FromDate(pkcs11.CKA_START_DATE, attribute.Date{}), DefaultIfAbsent: true},
		{Default: attribute.FromDate(pkcs11.CKA_END_DATE, attribute.Date{}), DefaultIfAbsent: true},
	}
}

// CommonPublicKeyAttrs is the "common public-key" fragment.
func CommonPublicKeyAttrs() Schema {
	return Schema{
		{Default: attribute.FromBool(pkcs11.CKA_ENCRYPT, false), DefaultIfAbsent: true},
		{Default: attribute.FromBool(pkcs11.CKA_VERIFY, false), DefaultIfAbsent: true},
		{Default: attribute.FromBool(pkcs11.CKA_WRAP, false), DefaultIfAbsent: true},
		{Default: attribute.FromBool(pkcs11.CKA_TRUSTED, false), DefaultIfAbsent: true},
	}
}

// CommonPrivateKeyAttrs is the "common private-key" fragment. Note
// CKA_PRIVATE's default is true here — factories compose this after
// CommonStorageAttrs so the later push wins, per spec.md §4.3.
func CommonPrivateKeyAttrs() Schema {
	return Schema{
		{Default: attribute.FromBool(pkcs11.CKA_PRIVATE, true), DefaultIfAbsent: true},
		{Default: attribute.FromBool(pkcs11.CKA_SENSITIVE, true), DefaultIfAbsent: true},
		{Default: attribute.FromBool(pkcs11.CKA_DECRYPT, false), DefaultIfAbsent: true},
		{Default: attribute.FromBool(pkcs11.CKA_SIGN, false), DefaultIfAbsent: true},
		{Default: attribute.FromBool(pkcs11.CKA_UNWRAP, false), DefaultIfAbsent: true},
		{Default: attribute.FromBool(pkcs11.CKA_EXTRACTABLE, false), DefaultIfAbsent: true},
		{Default: attribute.FromBool(pkcs11.CKA_ALWAYS_SENSITIVE, false), DefaultIfAbsent: true, Unchangeable: true},
		{Default: attribute.FromBool(pkcs11.CKA_NEVER_EXTRACTABLE, true), DefaultIfAbsent: true, Unchangeable: true},
	}
}

// Factory produces and validates objects for one (class, key type) pair.
type Factory interface {
	Schema() Schema
	// Create runs the default schema-driven checks and any class-specific
	// post-checks, returning the fully populated object.
	Create(handle uint64, template []*pkcs11.Attribute) (*Object, error)
}

// DefaultObjectCreate implements spec.md §4.3 steps 1-3: it mints a fresh
// UNIQUE_ID, walks the template against schema (rejecting unknown ids and
// duplicates), fills in defaults, and checks required-on-create entries.
// Class-specific post-checks (step 4) are the caller's responsibility.
func DefaultObjectCreate(schema Schema, handle uint64, template []*pkcs11.Attribute) (*Object, error) {
	cattrs := schema.clone()
	obj := New(handle)
	obj.SetAttr(attribute.NewUniqueID())
	// mark CKA_UNIQUE_ID present since we just set it ourselves.
	for i := range cattrs {
		if cattrs[i].id() == pkcs11.CKA_UNIQUE_ID {
			cattrs[i].present = true
		}
	}

	for _, ck := range template {
		idx := -1
		for i := range cattrs {
			if cattrs[i].id() == ck.Type {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, ckrv.AttributeValueInvalid()
		}
		if cattrs[idx].present {
			return nil, ckrv.TemplateInconsistent()
		}
		a, err := attribute.FromCKAttribute(ck)
		if err != nil {
			return nil, err
		}
		obj.SetAttr(a)
		cattrs[idx].present = true
	}

	for i := range cattrs {
		if !cattrs[i].present && cattrs[i].DefaultIfAbsent {
			obj.SetAttr(cattrs[i].Default)
			cattrs[i].present = true
		}
		if (cattrs[i].RequiredOnCreate || cattrs[i].AlwaysRequired) && !cattrs[i].present {
			return nil, ckrv.TemplateIncomplete()
		}
	}

	return obj, nil
}
