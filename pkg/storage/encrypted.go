package storage

import (
	"tempnotes/pkg/crypto"
	"tempnotes/pkg/errors"
)

// KeyConfigKey holds the clear-text key derivation parameters
const KeyConfigKey = "tempnotes_keyconfig"

// EncryptedKV seals every value with AES-GCM before handing it to the
// wrapped KV.
type EncryptedKV struct {
	inner KV
	key   []byte
}

// OpenEncryptedKV derives the key for passphrase. On first use a new salt is
// generated and stored under KeyConfigKey.
func OpenEncryptedKV(inner KV, passphrase string) (*EncryptedKV, error) {
	raw, ok, err := inner.Get(KeyConfigKey)
	if err != nil {
		return nil, err
	}

	if !ok {
		key, cfg, err := crypto.NewKeyConfig(passphrase)
		if err != nil {
			return nil, err
		}
		data, err := cfg.Marshal()
		if err != nil {
			return nil, err
		}
		if err := inner.Set(KeyConfigKey, string(data)); err != nil {
			return nil, err
		}
		return &EncryptedKV{inner: inner, key: key}, nil
	}

	cfg, err := crypto.ParseKeyConfig([]byte(raw))
	if err != nil {
		return nil, err
	}
	key, err := crypto.DeriveKey(passphrase, cfg)
	if err != nil {
		return nil, err
	}
	return &EncryptedKV{inner: inner, key: key}, nil
}

// IsEncrypted reports whether kv carries a key configuration
func IsEncrypted(kv KV) bool {
	_, ok, err := kv.Get(KeyConfigKey)
	return err == nil && ok
}

// Get decrypts the value for key
func (e *EncryptedKV) Get(key string) (string, bool, error) {
	sealed, ok, err := e.inner.Get(key)
	if err != nil || !ok {
		return "", ok, err
	}
	plain, err := crypto.Decrypt(sealed, e.key)
	if err != nil {
		if appErr, isApp := errors.As(err); isApp {
			return "", false, appErr.WithContext("key", key)
		}
		return "", false, err
	}
	return string(plain), true, nil
}

// Set encrypts value and stores it under key
func (e *EncryptedKV) Set(key, value string) error {
	if key == KeyConfigKey {
		return errors.New(errors.ErrTypeValidation, "RESERVED_KEY", "key is reserved").
			WithContext("key", key)
	}
	sealed, err := crypto.Encrypt([]byte(value), e.key)
	if err != nil {
		return err
	}
	return e.inner.Set(key, sealed)
}

// Delete removes key
func (e *EncryptedKV) Delete(key string) error {
	return e.inner.Delete(key)
}

// Keys lists data keys, hiding the key configuration
func (e *EncryptedKV) Keys() ([]string, error) {
	keys, err := e.inner.Keys()
	if err != nil {
		return nil, err
	}
	out := keys[:0]
	for _, k := range keys {
		if k != KeyConfigKey {
			out = append(out, k)
		}
	}
	return out, nil
}
