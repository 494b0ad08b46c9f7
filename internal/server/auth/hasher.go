package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"golang.org/x/crypto/argon2"
)

const algorithmID = "argon2id"

// HasherParams are the argon2id cost factors. Memory is in KiB.
type HasherParams struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultHasherParams follow the RFC 9106 second recommended option.
var DefaultHasherParams = HasherParams{
	Memory:      64 * 1024,
	Time:        3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// Hasher produces and checks argon2id digests in PHC string form:
//
//	$argon2id$v=19$m=65536,t=3,p=2$<salt>$<key>
//
// Verification uses the parameters stored in the digest, so raising the
// cost only affects new hashes.
type Hasher struct {
	p HasherParams
}

// NewHasher validates p and returns a Hasher.
func NewHasher(p HasherParams) (*Hasher, error) {
	switch {
	case p.Memory < 8*uint32(p.Parallelism) || p.Memory == 0:
		return nil, errors.New("argon2 memory must be at least 8 KiB per lane")
	case p.Time < 1:
		return nil, errors.New("argon2 time must be >= 1")
	case p.Parallelism < 1:
		return nil, errors.New("argon2 parallelism must be >= 1")
	case p.SaltLength < 8:
		return nil, errors.New("argon2 salt length must be >= 8")
	case p.KeyLength < 16:
		return nil, errors.New("argon2 key length must be >= 16")
	}
	return &Hasher{p: p}, nil
}

// Hash derives a digest for plaintext with a fresh random salt.
func (h *Hasher) Hash(plaintext string) (string, error) {
	salt, err := common.GenerateRandByteArray(int(h.p.SaltLength))
	if err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(plaintext), salt, h.p.Time, h.p.Memory, h.p.Parallelism, h.p.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version,
		h.p.Memory, h.p.Time, h.p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plaintext matches digest. A malformed digest
// never matches. The key comparison is constant time.
func (h *Hasher) Verify(digest, plaintext string) bool {
	d, err := parsePHC(digest)
	if err != nil {
		return false
	}
	key := argon2.IDKey([]byte(plaintext), d.salt, d.time, d.memory, d.parallelism, uint32(len(d.key)))
	return subtle.ConstantTimeCompare(key, d.key) == 1
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func parsePHC(s string) (*phc, error) {
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, errors.New("invalid PHC format")
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, errors.New("unsupported argon2 version")
	}

	d := &phc{}
	var seen int
	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, errors.New("invalid parameter entry")
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("invalid parameter %q", k)
		}
		switch k {
		case "m":
			d.memory = uint32(n)
		case "t":
			d.time = uint32(n)
		case "p":
			if n > 255 {
				return nil, errors.New("invalid parallelism")
			}
			d.parallelism = uint8(n)
		default:
			return nil, fmt.Errorf("unsupported parameter %q", k)
		}
		seen++
	}
	if seen != 3 {
		return nil, errors.New("missing parameters")
	}

	var err error
	if d.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(d.salt) == 0 {
		return nil, errors.New("invalid salt encoding")
	}
	if d.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(d.key) == 0 {
		return nil, errors.New("invalid key encoding")
	}
	return d, nil
}
