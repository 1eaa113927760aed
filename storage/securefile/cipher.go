package securefile

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
)

const (
	KeySize   = 32 // AES-256
	NonceSize = 12 // 96 bits
	tagSize   = 16
)

var (
	ErrDecrypt    = errors.New("unable to decrypt data file")
	ErrKeyMissing = errors.New("data file exists but its key file is missing")
)

// Envelope is the on-disk form of the encrypted document. All fields are standard base64.
type Envelope struct {
	IV         string `json:"iv"`
	AuthTag    string `json:"authTag"`
	Ciphertext string `json:"ciphertext"`
}

type keyFile struct {
	Key string `json:"key"`
}

// Cipher seals and opens envelopes with AES-256-GCM.
type Cipher struct {
	aead cipher.AEAD
}

func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, errors.Errorf("invalid key size %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "creating block cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "creating GCM")
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext under a fresh random nonce.
func (c *Cipher) Seal(plaintext []byte) (Envelope, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Envelope{}, errors.Wrap(err, "generating nonce")
	}
	sealed := c.aead.Seal(nil, nonce, plaintext, nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]
	return Envelope{
		IV:         base64.StdEncoding.EncodeToString(nonce),
		AuthTag:    base64.StdEncoding.EncodeToString(tag),
		Ciphertext: base64.StdEncoding.EncodeToString(ct),
	}, nil
}

// Open authenticates and decrypts env. Any failure is ErrDecrypt.
func (c *Cipher) Open(env Envelope) ([]byte, error) {
	nonce, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil || len(nonce) != NonceSize {
		return nil, ErrDecrypt
	}
	tag, err := base64.StdEncoding.DecodeString(env.AuthTag)
	if err != nil || len(tag) != tagSize {
		return nil, ErrDecrypt
	}
	ct, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, ErrDecrypt
	}
	plaintext, err := c.aead.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// GenerateKey returns a random 256-bit key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, errors.Wrap(err, "generating key")
	}
	return key, nil
}

func encodeKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// loadOrCreateKey reads the key file at path, creating it when create is true and it does not exist.
func loadOrCreateKey(path string, create bool) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		var kf keyFile
		if err = json.Unmarshal(data, &kf); err != nil {
			return nil, errors.Wrapf(err, "parsing key file %s", path)
		}
		key, err := base64.StdEncoding.DecodeString(kf.Key)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding key file %s", path)
		}
		if len(key) != KeySize {
			return nil, errors.Errorf("key file %s: invalid key size %d", path, len(key))
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "reading key file %s", path)
	}
	if !create {
		return nil, ErrKeyMissing
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	data, err = json.Marshal(keyFile{Key: encodeKey(key)})
	if err != nil {
		return nil, err
	}
	if err = atomicWriteFile(path, data); err != nil {
		return nil, errors.Wrapf(err, "writing key file %s", path)
	}
	return key, nil
}
