// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package jsonstore implements the JSON file storage backend, the
// neutral attribute encoding of spec.md §4.8, grounded on
// original_source/src/storage/json.rs (JsonObject/JsonToken).
package jsonstore

import (
	"encoding/base64"
	"encoding/json"
	"os"

	"github.com/miekg/pkcs11"
	"golang.org/x/sync/errgroup"

	"github.com/lowRISC/kryoptic-go/pkg/attribute"
	"github.com/lowRISC/kryoptic-go/pkg/ckrv"
	"github.com/lowRISC/kryoptic-go/pkg/object"
	"github.com/lowRISC/kryoptic-go/pkg/storage"
)

// jsonObject is the on-disk shape of one persisted object, matching
// original_source's JsonObject: a map from canonical CKA_* name to
// neutral-encoded value.
type jsonObject struct {
	Attributes map[string]interface{} `json:"attributes"`
}

type jsonToken struct {
	Objects []jsonObject `json:"objects"`
}

// EncodeObject converts obj into its neutral, name-keyed JSON form.
func EncodeObject(obj *object.Object) jsonObject {
	out := make(map[string]interface{}, len(obj.Attributes()))
	for _, a := range obj.Attributes() {
		v := a.NeutralValue(func(b []byte) string { return base64.StdEncoding.EncodeToString(b) })
		if v == nil {
			continue
		}
		out[a.CanonicalName()] = v
	}
	return jsonObject{Attributes: out}
}

// DecodeObject rebuilds an Object from its neutral JSON form, per
// spec.md §4.8's reverse rules. Unknown attribute names, decoding
// failures, and a missing CKA_UNIQUE_ID are all errors.
func DecodeObject(handle uint64, jo jsonObject) (*object.Object, string, error) {
	return DecodeAttributes(handle, jo.Attributes)
}

// DecodeAttributes rebuilds an Object from a bare name->neutral-value
// map, the shape shared by the JSON file backend and sqlstore's
// per-row JSON blob column.
func DecodeAttributes(handle uint64, attrs map[string]interface{}) (*object.Object, string, error) {
	obj := object.New(handle)
	var uid string
	for name, raw := range attrs {
		id, typ, err := attribute.NameToID(name)
		if err != nil {
			return nil, "", err
		}
		var a attribute.Attribute
		switch typ {
		case attribute.BoolType:
			b, ok := raw.(bool)
			if !ok {
				return nil, "", ckrv.AttributeValueInvalid()
			}
			a = attribute.FromBool(id, b)
		case attribute.NumType:
			n, ok := raw.(float64)
			if !ok {
				return nil, "", ckrv.AttributeValueInvalid()
			}
			a = attribute.FromUlong(id, uint64(n))
		case attribute.StringType:
			s, ok := raw.(string)
			if !ok {
				return nil, "", ckrv.AttributeValueInvalid()
			}
			a = attribute.FromString(id, s)
		case attribute.BytesType:
			s, ok := raw.(string)
			if !ok {
				return nil, "", ckrv.AttributeValueInvalid()
			}
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, "", ckrv.AttributeValueInvalid()
			}
			a = attribute.FromBytes(id, b)
		case attribute.DateType:
			s, ok := raw.(string)
			if !ok {
				return nil, "", ckrv.AttributeValueInvalid()
			}
			d, err := attribute.ParseDate(s)
			if err != nil {
				return nil, "", err
			}
			a = attribute.FromDate(id, d)
		default:
			continue
		}
		obj.SetAttr(a)
		if name == "CKA_UNIQUE_ID" {
			s, _ := a.ToString()
			uid = s
		}
	}
	if uid == "" {
		return nil, "", ckrv.DeviceError()
	}
	return obj, uid, nil
}

// Backend is the JSON file storage.Storage implementation.
type Backend struct {
	filename string
	cache    *storage.Cache
	nextH    uint64
}

func New() *Backend {
	return &Backend{cache: storage.NewCache()}
}

// Open prime-loads every persisted object into the cache, per
// spec.md §4.8. A missing file is treated as an empty, freshly
// initialized token rather than an error.
func (b *Backend) Open(filename string) error {
	b.filename = filename
	f, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			b.cache.Clear()
			return nil
		}
		return ckrv.Wrap(pkcs11.CKR_DEVICE_ERROR, err)
	}
	defer f.Close()

	var tok jsonToken
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return ckrv.Wrap(pkcs11.CKR_DEVICE_ERROR, err)
	}

	decoded := make([]*object.Object, len(tok.Objects))
	uids := make([]string, len(tok.Objects))
	var eg errgroup.Group
	for i, jo := range tok.Objects {
		i, jo := i, jo
		eg.Go(func() error {
			obj, uid, err := DecodeObject(uint64(i)+1, jo)
			if err != nil {
				return err
			}
			decoded[i] = obj
			uids[i] = uid
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	b.cache.Clear()
	b.nextH = uint64(len(tok.Objects))
	for i, obj := range decoded {
		if err := b.cache.Store(uids[i], obj); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) Reinit() error {
	b.cache.Clear()
	return nil
}

// Flush serializes every cached object with CKA_TOKEN=true, per
// spec.md §4.8.
func (b *Backend) Flush() error {
	objs := b.cache.TokenObjects()
	tok := jsonToken{Objects: make([]jsonObject, 0, len(objs))}
	for _, obj := range objs {
		tok.Objects = append(tok.Objects, EncodeObject(obj))
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return ckrv.Wrap(pkcs11.CKR_DEVICE_ERROR, err)
	}
	if err := os.WriteFile(b.filename, data, 0o600); err != nil {
		return ckrv.Wrap(pkcs11.CKR_DEVICE_ERROR, err)
	}
	return nil
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
