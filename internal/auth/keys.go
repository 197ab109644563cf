package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"sync"
)

// KeyStore provides access to JWT signing and verification keys.
type KeyStore interface {
	// SigningKey returns the current private signing key and its key ID.
	SigningKey() (*rsa.PrivateKey, string, error)

	// PublicKey returns the public key for the given key ID.
	PublicKey(kid string) (*rsa.PublicKey, error)
}

// StaticKeyStore is a KeyStore backed by in-memory keys.
type StaticKeyStore struct {
	mu         sync.RWMutex
	privateKey *rsa.PrivateKey
	keyID      string
	publicKeys map[string]*rsa.PublicKey
}

// NewStaticKeyStore creates a StaticKeyStore with a single key pair.
func NewStaticKeyStore(privateKey *rsa.PrivateKey, keyID string) *StaticKeyStore {
	return &StaticKeyStore{
		privateKey: privateKey,
		keyID:      keyID,
		publicKeys: map[string]*rsa.PublicKey{
			keyID: &privateKey.PublicKey,
		},
	}
}

// LoadKeyStoreFile reads a PEM private key from path and returns a
// StaticKeyStore serving it under keyID.
func LoadKeyStoreFile(path, keyID string) (*StaticKeyStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	key, err := ParsePrivateKeyPEM(data)
	if err != nil {
		return nil, err
	}
	return NewStaticKeyStore(key, keyID), nil
}

// ParsePrivateKeyPEM decodes an RSA private key in PKCS#1 or PKCS#8 PEM form.
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("parse signing key: no PEM block found")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PKCS1 signing key: %w", err)
		}
		return key, nil
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PKCS8 signing key: %w", err)
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("parse signing key: expected RSA key, got %T", parsed)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("parse signing key: unsupported PEM block %q", block.Type)
	}
}

// EncodePrivateKeyPEM renders key as a PKCS#8 PEM block.
func EncodePrivateKeyPEM(key *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("encode signing key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// SigningKey returns the private signing key and its key ID.
func (s *StaticKeyStore) SigningKey() (*rsa.PrivateKey, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.privateKey == nil {
		return nil, "", fmt.Errorf("no signing key available")
	}
	return s.privateKey, s.keyID, nil
}

// PublicKey returns the public key for the given key ID.
func (s *StaticKeyStore) PublicKey(kid string) (*rsa.PublicKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pk, ok := s.publicKeys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown key ID %q", kid)
	}
	return pk, nil
}

// AddPublicKey registers an additional verification key, e.g. during rotation.
func (s *StaticKeyStore) AddPublicKey(kid string, key *rsa.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publicKeys[kid] = key
}

// ParsePublicKeyPEM decodes an RSA public key in PKIX PEM form.
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("parse public key: no PEM block found")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse PKIX public key: %w", err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("parse public key: expected RSA key, got %T", parsed)
	}
	return key, nil
}

// EncodePublicKeyPEM renders key as a PKIX PEM block.
func EncodePublicKeyPEM(key *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, fmt.Errorf("encode public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}
