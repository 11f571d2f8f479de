// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package main implements kryopticctl, a small command-line harness
// exercising the token kernel's digest/HMAC/RSA/EC-Montgomery flows.
package main

import (
	"encoding/asn1"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/miekg/pkcs11"

	"github.com/lowRISC/kryoptic-go/pkg/attribute"
	"github.com/lowRISC/kryoptic-go/pkg/config"
	"github.com/lowRISC/kryoptic-go/pkg/object"
	"github.com/lowRISC/kryoptic-go/pkg/ops"
	"github.com/lowRISC/kryoptic-go/pkg/provider"
	"github.com/lowRISC/kryoptic-go/pkg/token"
)

var version = flag.Bool("version", false, "Print version information and exit")

func main() {
	flag.Parse()
	if *version {
		fmt.Println("kryopticctl (kryoptic-go)")
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		log.Fatalf("usage: kryopticctl <digest|hmac|rsa|ec|create> [args...]")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	tok, err := token.Open(cfg)
	if err != nil {
		log.Fatalf("failed to open token: %v", err)
	}

	switch args[0] {
	case "digest":
		runDigest(args[1:])
	case "hmac":
		runHMAC(args[1:])
	case "rsa":
		runRSA(tok)
	case "ec":
		runEC(tok)
	case "create":
		runCreate(tok, args[1:])
	default:
		log.Fatalf("unknown subcommand %q", args[0])
	}
}

func runDigest(args []string) {
	if len(args) != 1 {
		log.Fatalf("usage: kryopticctl digest <text>")
	}
	m := ops.NewDigestMechanism(provider.SHA256)
	op, err := m.NewDigest(&pkcs11.Mechanism{Mechanism: pkcs11.CKM_SHA256})
	if err != nil {
		log.Fatalf("NewDigest() failed: %v", err)
	}
	sum, err := op.Digest([]byte(args[0]))
	if err != nil {
		log.Fatalf("Digest() failed: %v", err)
	}
	fmt.Println(hex.EncodeToString(sum))
}

func runHMAC(args []string) {
	if len(args) != 2 {
		log.Fatalf("usage: kryopticctl hmac <hex-key> <text>")
	}
	key, err := hex.DecodeString(args[0])
	if err != nil {
		log.Fatalf("invalid hex key: %v", err)
	}
	keyObj := object.New(1)
	keyObj.SetAttr(attribute.FromBytes(pkcs11.CKA_VALUE, key))

	m := ops.NewHMACMechanism(provider.SHA256, 32, false)
	op, err := m.NewSign(&pkcs11.Mechanism{Mechanism: pkcs11.CKM_SHA256_HMAC}, keyObj)
	if err != nil {
		log.Fatalf("NewSign() failed: %v", err)
	}
	mac, err := op.Sign(nil, []byte(args[1]))
	if err != nil {
		log.Fatalf("Sign() failed: %v", err)
	}
	fmt.Println(hex.EncodeToString(mac))
}

func runRSA(tok *token.Token) {
	m := ops.NewRSAKeyPairGenMechanism(1024, 0)
	pubTemplate := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_MODULUS_BITS, uint(2048)),
	}
	pub, priv, err := m.GenerateKeyPair(tok.RNG, &pkcs11.Mechanism{Mechanism: pkcs11.CKM_RSA_PKCS_KEY_PAIR_GEN}, pubTemplate, nil)
	if err != nil {
		log.Fatalf("GenerateKeyPair() failed: %v", err)
	}

	encMech := ops.NewRSAPKCSMechanism(1024, 0)
	encOp, err := encMech.NewEncryption(&pkcs11.Mechanism{Mechanism: pkcs11.CKM_RSA_PKCS}, pub)
	if err != nil {
		log.Fatalf("NewEncryption() failed: %v", err)
	}
	cipher, err := encOp.Encrypt(tok.RNG, []byte("hello"))
	if err != nil {
		log.Fatalf("Encrypt() failed: %v", err)
	}
	decOp, err := encMech.NewDecryption(&pkcs11.Mechanism{Mechanism: pkcs11.CKM_RSA_PKCS}, priv)
	if err != nil {
		log.Fatalf("NewDecryption() failed: %v", err)
	}
	plain, err := decOp.Decrypt(tok.RNG, cipher)
	if err != nil {
		log.Fatalf("Decrypt() failed: %v", err)
	}
	fmt.Printf("round-trip: %q -> %x -> %q\n", "hello", cipher, plain)
}

func runEC(tok *token.Token) {
	m := ops.NewECMontgomeryKeyPairGenMechanism()
	oidDER, err := asn1.Marshal(object.X25519OID)
	if err != nil {
		log.Fatalf("asn1.Marshal() failed: %v", err)
	}
	pubTemplate := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_EC_PARAMS, oidDER),
	}
	pub, _, err := m.GenerateKeyPair(tok.RNG, &pkcs11.Mechanism{Mechanism: pkcs11.CKM_EC_MONTGOMERY_KEY_PAIR_GEN}, pubTemplate, nil)
	if err != nil {
		log.Fatalf("GenerateKeyPair() failed: %v", err)
	}
	point, err := pub.GetAttrAsBytes(pkcs11.CKA_EC_POINT)
	if err != nil {
		log.Fatalf("GetAttrAsBytes(EC_POINT) failed: %v", err)
	}
	fmt.Println(hex.EncodeToString(point))
}

func runCreate(tok *token.Token, args []string) {
	if len(args) != 1 {
		log.Fatalf("usage: kryopticctl create <value-hex>")
	}
	value, err := hex.DecodeString(args[0])
	if err != nil {
		log.Fatalf("invalid hex value: %v", err)
	}
	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, uint(pkcs11.CKO_DATA)),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, true),
		pkcs11.NewAttribute(pkcs11.CKA_APPLICATION, "kryopticctl"),
		pkcs11.NewAttribute(pkcs11.CKA_VALUE, value),
	}
	obj, err := tok.CreateObject(1, template)
	if err != nil {
		log.Fatalf("CreateObject() failed: %v", err)
	}
	uid, err := obj.GetAttrAsString(pkcs11.CKA_UNIQUE_ID)
	if err != nil {
		log.Fatalf("GetAttrAsString(UNIQUE_ID) failed: %v", err)
	}
	fmt.Println(uid)
}
