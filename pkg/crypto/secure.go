package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"

	"tempnotes/pkg/errors"

	"golang.org/x/crypto/pbkdf2"
)

// KeyDerivationMethod represents the method used for key derivation
type KeyDerivationMethod string

// MethodPBKDF2 is the only supported derivation method
const MethodPBKDF2 KeyDerivationMethod = "pbkdf2"

// KeyConfig holds the parameters needed to re-derive a key from a passphrase.
// It is stored in clear next to the encrypted data.
type KeyConfig struct {
	Method     KeyDerivationMethod `json:"method"`
	Salt       string              `json:"salt"`
	Iterations int                 `json:"iterations"`
	KeyLength  int                 `json:"keyLength"`
	// Check is a sealed marker used to detect a wrong passphrase before any
	// record is decrypted.
	Check string `json:"check,omitempty"`
}

// Default PBKDF2 configuration
const (
	DefaultPBKDF2Iterations = 100000
	DefaultKeyLength        = 32
	SaltLength              = 32
)

const checkPlaintext = "tempnotes"

// NewKeyConfig derives a fresh key with a random salt and returns it with
// the configuration needed to derive it again.
func NewKeyConfig(passphrase string) ([]byte, *KeyConfig, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrTypeCrypto, "SALT_GENERATION_FAILED",
			"failed to generate salt").
			WithUserMessage("Unable to generate secure encryption key")
	}

	key := pbkdf2.Key([]byte(passphrase), salt, DefaultPBKDF2Iterations, DefaultKeyLength, sha256.New)

	check, err := Encrypt([]byte(checkPlaintext), key)
	if err != nil {
		return nil, nil, err
	}

	cfg := &KeyConfig{
		Method:     MethodPBKDF2,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Iterations: DefaultPBKDF2Iterations,
		KeyLength:  DefaultKeyLength,
		Check:      check,
	}
	return key, cfg, nil
}

// DeriveKey derives the key described by cfg and verifies it against the
// check marker when one is present.
func DeriveKey(passphrase string, cfg *KeyConfig) ([]byte, error) {
	if cfg.Method != MethodPBKDF2 {
		return nil, errors.New(errors.ErrTypeCrypto, "UNSUPPORTED_METHOD",
			"unsupported key derivation method").
			WithUserMessage("Unsupported encryption method").
			WithContext("method", string(cfg.Method))
	}

	salt, err := base64.StdEncoding.DecodeString(cfg.Salt)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeCrypto, "SALT_DECODE_FAILED",
			"failed to decode salt").
			WithUserMessage("Invalid encryption configuration")
	}

	key := pbkdf2.Key([]byte(passphrase), salt, cfg.Iterations, cfg.KeyLength, sha256.New)

	if cfg.Check != "" {
		plain, err := Decrypt(cfg.Check, key)
		if err != nil || string(plain) != checkPlaintext {
			return nil, errors.ErrDecryptionFailed.WithContext("reason", "passphrase check failed")
		}
	}
	return key, nil
}

// ParseKeyConfig decodes a stored key configuration
func ParseKeyConfig(data []byte) (*KeyConfig, error) {
	var cfg KeyConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeCrypto, "KEY_CONFIG_INVALID",
			"failed to parse key configuration").
			WithUserMessage("Invalid encryption configuration")
	}
	return &cfg, nil
}

// Marshal encodes the configuration for storage
func (c *KeyConfig) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeConfig, "CONFIG_MARSHAL_FAILED",
			"failed to marshal key configuration")
	}
	return data, nil
}
