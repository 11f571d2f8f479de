// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package storage implements the token cache contract of spec.md §4.8:
// an in-memory map primed from and flushed to a persisted backend,
// grounded on original_source/src/storage/json.rs and its memory cache
// collaborator.
package storage

import (
	"sync"

	"github.com/miekg/pkcs11"

	"github.com/lowRISC/kryoptic-go/pkg/ckrv"
	"github.com/lowRISC/kryoptic-go/pkg/object"
)

// Storage is the contract a persistence backend implements, per
// spec.md §4.8.
type Storage interface {
	Open(filename string) error
	Reinit() error
	Flush() error
	FetchByUID(uid string) (*object.Object, error)
	Store(uid string, obj *object.Object) error
	Search(template []*pkcs11.Attribute) ([]*object.Object, error)
	RemoveByUID(uid string) error
}

// Cache is the in-memory uid->Object map every backend composes,
// mirroring original_source's storage::memory collaborator. It
// serializes store/remove against search/fetch with a single RWMutex,
// per spec.md §5's cache concurrency policy.
type Cache struct {
	mu      sync.RWMutex
	objects map[string]*object.Object
}

func NewCache() *Cache {
	return &Cache{objects: make(map[string]*object.Object)}
}

func (c *Cache) FetchByUID(uid string) (*object.Object, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	obj, ok := c.objects[uid]
	if !ok {
		return nil, ckrv.Newf(pkcs11.CKR_OBJECT_HANDLE_INVALID, "no object with uid %q", uid)
	}
	return obj, nil
}

func (c *Cache) Store(uid string, obj *object.Object) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[uid] = obj
	return nil
}

func (c *Cache) RemoveByUID(uid string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.objects[uid]; !ok {
		return ckrv.Newf(pkcs11.CKR_OBJECT_HANDLE_INVALID, "no object with uid %q", uid)
	}
	delete(c.objects, uid)
	return nil
}

// Search returns every cached object matching template (all entries
// present by id and byte-equal value); an empty template matches every
// object, the way original_source's cache.search(&[]) lists everything
// for flush.
func (c *Cache) Search(template []*pkcs11.Attribute) ([]*object.Object, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*object.Object, 0, len(c.objects))
	for _, obj := range c.objects {
		if obj.MatchTemplate(template) {
			out = append(out, obj)
		}
	}
	return out, nil
}

// TokenObjects returns every cached object with CKA_TOKEN=true, the set
// flush serializes to the backing store.
func (c *Cache) TokenObjects() []*object.Object {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*object.Object, 0, len(c.objects))
	for _, obj := range c.objects {
		if obj.IsToken() {
			out = append(out, obj)
		}
	}
	return out
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects = make(map[string]*object.Object)
}
