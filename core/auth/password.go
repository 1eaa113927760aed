package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/scrypt"
)

const (
	hashScheme    = "scrypt"
	hashSeparator = "$"
)

// HasherParams are the scrypt cost parameters used for new hashes.
type HasherParams struct {
	N       int
	R       int
	P       int
	SaltLen int
	KeyLen  int
}

// DefaultHasherParams: N=2^14, r=8, p=1, 16 byte salt, 32 byte key.
var DefaultHasherParams = HasherParams{N: 16384, R: 8, P: 1, SaltLen: 16, KeyLen: 32}

// Hasher derives and verifies password hashes of the form `scrypt$N$r$p$salt$key`.
type Hasher struct {
	params HasherParams
}

func NewHasher(params HasherParams) *Hasher {
	return &Hasher{params: params}
}

// Hash returns a self-describing scrypt hash for password using a fresh random salt.
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", errors.Wrap(err, "generating salt")
	}
	key, err := scrypt.Key([]byte(password), salt, h.params.N, h.params.R, h.params.P, h.params.KeyLen)
	if err != nil {
		return "", errors.Wrap(err, "deriving key")
	}
	return strings.Join([]string{
		hashScheme,
		strconv.Itoa(h.params.N),
		strconv.Itoa(h.params.R),
		strconv.Itoa(h.params.P),
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	}, hashSeparator), nil
}

// Verify reports whether password matches stored. It never panics: malformed input is a mismatch.
func (h *Hasher) Verify(password, stored string) bool {
	parsed, err := parseHash(stored)
	if err != nil {
		return false
	}
	key, err := scrypt.Key([]byte(password), parsed.salt, parsed.n, parsed.r, parsed.p, len(parsed.key))
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(key, parsed.key) == 1
}

type parsedHash struct {
	n, r, p int
	salt    []byte
	key     []byte
}

func parseHash(stored string) (parsedHash, error) {
	parts := strings.Split(stored, hashSeparator)
	if len(parts) != 6 || parts[0] != hashScheme {
		return parsedHash{}, errors.New("unknown hash format")
	}

	var ph parsedHash
	params := make([]int, 3)
	for i, s := range parts[1:4] {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			return parsedHash{}, fmt.Errorf("invalid hash parameter %q", s)
		}
		params[i] = v
	}
	ph.n, ph.r, ph.p = params[0], params[1], params[2]

	var err error
	if ph.salt, err = base64.StdEncoding.DecodeString(parts[4]); err != nil {
		return parsedHash{}, errors.Wrap(err, "decoding salt")
	}
	if ph.key, err = base64.StdEncoding.DecodeString(parts[5]); err != nil {
		return parsedHash{}, errors.Wrap(err, "decoding key")
	}
	if len(ph.key) == 0 {
		return parsedHash{}, errors.New("empty key")
	}
	return ph, nil
}
