// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"testing"

	"github.com/miekg/pkcs11"

	"github.com/lowRISC/kryoptic-go/pkg/object"
)

func dataObject(t *testing.T, handle uint64) *object.Object {
	t.Helper()
	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, uint(pkcs11.CKO_DATA)),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, true),
		pkcs11.NewAttribute(pkcs11.CKA_APPLICATION, "t"),
		pkcs11.NewAttribute(pkcs11.CKA_VALUE, []byte{0x01, 0x02, 0x03}),
	}
	obj, err := object.NewDataObjectFactory().Create(handle, template)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	return obj
}

func TestCacheStoreFetchSearchRemove(t *testing.T) {
	c := NewCache()
	obj := dataObject(t, 1)
	uid, err := obj.GetAttrAsString(pkcs11.CKA_UNIQUE_ID)
	if err != nil {
		t.Fatalf("GetAttrAsString(UNIQUE_ID) failed: %v", err)
	}

	if err := c.Store(uid, obj); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}
	got, err := c.FetchByUID(uid)
	if err != nil || got != obj {
		t.Fatalf("FetchByUID() = %v, %v, want original object", got, err)
	}

	matches, err := c.Search([]*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_APPLICATION, "t"),
	})
	if err != nil || len(matches) != 1 {
		t.Fatalf("Search() = %v, %v, want one match", matches, err)
	}

	if objs := c.TokenObjects(); len(objs) != 1 {
		t.Fatalf("TokenObjects() = %d objects, want 1", len(objs))
	}

	if err := c.RemoveByUID(uid); err != nil {
		t.Fatalf("RemoveByUID() failed: %v", err)
	}
	if _, err := c.FetchByUID(uid); err == nil {
		t.Fatal("FetchByUID() after remove: want error, got nil")
	}
}
