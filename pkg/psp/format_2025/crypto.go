package format_2025

import (
	"bytes"
	"compress/gzip"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"os"
)

// writeMetadata marshals metadata as canonical indented JSON, signs the
// uncompressed bytes with Ed25519, gzips them, and writes the gzipped
// form to w. It returns the number of compressed bytes written and the
// 64-byte signature for the caller to place in the index block.
func writeMetadata(w io.Writer, metadata *Metadata, privateKey, publicKey []byte) (int, []byte, error) {
	plaintext, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return 0, nil, err
	}

	signature := ed25519.Sign(privateKey, plaintext)

	var compressed bytes.Buffer
	gw := gzip.NewWriter(&compressed)
	if _, err := gw.Write(plaintext); err != nil {
		return 0, nil, err
	}
	if err := gw.Close(); err != nil {
		return 0, nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}

	n, err := w.Write(compressed.Bytes())
	return n, signature, err
}

// loadKeysFromFiles loads an Ed25519 keypair from PEM files: the private
// key is required, the public key is optional and derived from the
// private key when omitted. Each file is tried as PKCS8/PKIX first, then
// as a raw Ed25519 key of the expected size.
func loadKeysFromFiles(privateKeyPath, publicKeyPath string) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	privateKey, err := loadEd25519PrivateKey(privateKeyPath)
	if err != nil {
		return nil, nil, err
	}

	if publicKeyPath == "" {
		return privateKey, privateKey.Public().(ed25519.PublicKey), nil
	}

	publicKey, err := loadEd25519PublicKey(publicKeyPath)
	if err != nil {
		return nil, nil, err
	}
	return privateKey, publicKey, nil
}

func loadEd25519PrivateKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode private key PEM")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		privateKey, ok := key.(ed25519.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is not Ed25519")
		}
		return privateKey, nil
	}

	if len(block.Bytes) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(block.Bytes), nil
	}

	return nil, fmt.Errorf("unable to parse private key: unsupported encoding")
}

func loadEd25519PublicKey(path string) (ed25519.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode public key PEM")
	}

	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		publicKey, ok := key.(ed25519.PublicKey)
		if !ok {
			return nil, fmt.Errorf("public key is not Ed25519")
		}
		return publicKey, nil
	}

	if len(block.Bytes) == ed25519.PublicKeySize {
		return ed25519.PublicKey(block.Bytes), nil
	}

	return nil, fmt.Errorf("unable to parse public key: unsupported encoding")
}
