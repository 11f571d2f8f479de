// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package sqlstore implements the SQL file storage backend named in
// SPEC_FULL.md's domain stack alongside jsonstore: a single-table
// key/value store where each row holds one object's neutral-encoded
// attribute map, backed by gorm.io/gorm and gorm.io/driver/sqlite.
package sqlstore

import (
	"encoding/json"

	"github.com/miekg/pkcs11"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lowRISC/kryoptic-go/pkg/ckrv"
	"github.com/lowRISC/kryoptic-go/pkg/object"
	"github.com/lowRISC/kryoptic-go/pkg/storage"
	"github.com/lowRISC/kryoptic-go/pkg/storage/jsonstore"
)

// row is the gorm model backing the objects table: one row per
// persisted object, keyed by its CKA_UNIQUE_ID, with the attribute map
// reusing jsonstore's neutral encoding as a JSON blob column.
type row struct {
	UID        string `gorm:"primaryKey"`
	Attributes string
}

func (row) TableName() string { return "objects" }

// Backend is the SQL file storage.Storage implementation.
type Backend struct {
	db    *gorm.DB
	cache *storage.Cache
	nextH uint64
}

func New() *Backend {
	return &Backend{cache: storage.NewCache()}
}

// Open opens (creating if absent) a SQLite file at filename, migrates
// the objects table, and primes the cache from every stored row.
func (b *Backend) Open(filename string) error {
	db, err := gorm.Open(sqlite.Open(filename), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return ckrv.Wrap(pkcs11.CKR_DEVICE_ERROR, err)
	}
	if err := db.AutoMigrate(&row{}); err != nil {
		return ckrv.Wrap(pkcs11.CKR_DEVICE_ERROR, err)
	}
	b.db = db
	return b.prime()
}

func (b *Backend) prime() error {
	var rows []row
	if err := b.db.Find(&rows).Error; err != nil {
		return ckrv.Wrap(pkcs11.CKR_DEVICE_ERROR, err)
	}
	b.cache.Clear()
	for _, r := range rows {
		var jo struct {
			Attributes map[string]interface{} `json:"attributes"`
		}
		if err := json.Unmarshal([]byte(r.Attributes), &jo); err != nil {
			return ckrv.Wrap(pkcs11.CKR_DEVICE_ERROR, err)
		}
		b.nextH++
		obj, uid, err := jsonstore.DecodeAttributes(b.nextH, jo.Attributes)
		if err != nil {
			return err
		}
		if err := b.cache.Store(uid, obj); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) Reinit() error {
	if err := b.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&row{}).Error; err != nil {
		return ckrv.Wrap(pkcs11.CKR_DEVICE_ERROR, err)
	}
	b.cache.Clear()
	return nil
}

// Flush rewrites every token row from the current cache contents, the
// same CKA_TOKEN=true set the JSON backend serializes.
func (b *Backend) Flush() error {
	return b.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&row{}).Error; err != nil {
			return err
		}
		for _, obj := range b.cache.TokenObjects() {
			jo := jsonstore.EncodeObject(obj)
			data, err := json.Marshal(jo)
			if err != nil {
				return err
			}
			uid, err := obj.GetAttrAsString(pkcs11.CKA_UNIQUE_ID)
			if err != nil {
				return err
			}
			if err := tx.Create(&row{UID: uid, Attributes: string(data)}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Backend) FetchByUID(uid string) (*object.Object, error) {
	return b.cache.FetchByUID(uid)
}

func (b *Backend) Store(uid string, obj *object.Object) error {
	if err := b.cache.Store(uid, obj); err != nil {
		return err
	}
	return b.Flush()
}

func (b *Backend) Search(template []*pkcs11.Attribute) ([]*object.Object, error) {
	return b.cache.Search(template)
}

func (b *Backend) RemoveByUID(uid string) error {
	if err := b.cache.RemoveByUID(uid); err != nil {
		return err
	}
	return b.Flush()
}

var _ storage.Storage = (*Backend)(nil)
