// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package ckrv centralizes the PKCS#11 CKR_* return code taxonomy as a Go
// error type, so that every layer of the token kernel returns the same
// typed error instead of ad-hoc strings.
package ckrv

import (
	"errors"
	"fmt"

	"github.com/miekg/pkcs11"
)

// Error wraps a CKR_* return code with context. It implements error and
// supports errors.Is against another *Error by comparing codes only, so
// callers can write errors.Is(err, ckrv.New(pkcs11.CKR_ATTRIBUTE_SENSITIVE)).
type Error struct {
	Code uint
	Msg  string
	Wrap error
}

func New(code uint) *Error {
	return &Error{Code: code}
}

func Newf(code uint, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(code uint, err error) *Error {
	return &Error{Code: code, Wrap: err}
}

func (e *Error) Error() string {
	name := pkcs11.Error(e.Code).Error()
	switch {
	case e.Msg != "" && e.Wrap != nil:
		return fmt.Sprintf("%s: %s: %v", name, e.Msg, e.Wrap)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", name, e.Msg)
	case e.Wrap != nil:
		return fmt.Sprintf("%s: %v", name, e.Wrap)
	default:
		return name
	}
}

func (e *Error) Unwrap() error {
	return e.Wrap
}

func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// RV extracts the CKR_* code from err, defaulting to CKR_GENERAL_ERROR if
// err is not (or does not wrap) a *Error.
func RV(err error) uint {
	if err == nil {
		return pkcs11.CKR_OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return pkcs11.CKR_GENERAL_ERROR
}

// Convenience constructors for the codes named in spec.md §6/§7.
func AttributeSensitive() *Error     { return New(pkcs11.CKR_ATTRIBUTE_SENSITIVE) }
func AttributeTypeInvalid() *Error   { return New(pkcs11.CKR_ATTRIBUTE_TYPE_INVALID) }
func AttributeValueInvalid() *Error  { return New(pkcs11.CKR_ATTRIBUTE_VALUE_INVALID) }
func BufferTooSmall() *Error         { return New(pkcs11.CKR_BUFFER_TOO_SMALL) }
func DataLenRange() *Error           { return New(pkcs11.CKR_DATA_LEN_RANGE) }
func DeviceError() *Error            { return New(pkcs11.CKR_DEVICE_ERROR) }
func GeneralError() *Error           { return New(pkcs11.CKR_GENERAL_ERROR) }
func KeySizeRange() *Error           { return New(pkcs11.CKR_KEY_SIZE_RANGE) }
func KeyTypeInconsistent() *Error    { return New(pkcs11.CKR_KEY_TYPE_INCONSISTENT) }
func MechanismInvalid() *Error       { return New(pkcs11.CKR_MECHANISM_INVALID) }
func MechanismParamInvalid() *Error  { return New(pkcs11.CKR_MECHANISM_PARAM_INVALID) }
func OperationNotInitialized() *Error {
	return New(pkcs11.CKR_OPERATION_NOT_INITIALIZED)
}
func RandomNoRng() *Error          { return New(pkcs11.CKR_RANDOM_NO_RNG) }
func SignatureInvalid() *Error     { return New(pkcs11.CKR_SIGNATURE_INVALID) }
func TemplateIncomplete() *Error   { return New(pkcs11.CKR_TEMPLATE_INCOMPLETE) }
func TemplateInconsistent() *Error { return New(pkcs11.CKR_TEMPLATE_INCONSISTENT) }
func ArgumentsBad() *Error         { return New(pkcs11.CKR_ARGUMENTS_BAD) }
