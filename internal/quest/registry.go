package quest

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Fingerprinter derives the stored value for a normalized code. The
// function itself is case-sensitive; callers normalize first.
type Fingerprinter interface {
	Fingerprint(normalized string) string
}

// MD5Fingerprinter matches the digests of previously imported games.
type MD5Fingerprinter struct{}

func (MD5Fingerprinter) Fingerprint(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

type SHA256Fingerprinter struct{}

func (SHA256Fingerprinter) Fingerprint(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Blake2bFingerprinter keys the digest so fingerprints from one deployment
// cannot be matched against a public rainbow table.
type Blake2bFingerprinter struct {
	Key []byte
}

func (f Blake2bFingerprinter) Fingerprint(s string) string {
	h, err := blake2b.New256(f.Key)
	if err != nil {
		// Keys longer than 64 bytes are rejected by NewBlake2bFingerprinter.
		panic(err)
	}
	h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))
}

func ParseFingerprinter(name string) (Fingerprinter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "md5":
		return MD5Fingerprinter{}, nil
	case "sha256":
		return SHA256Fingerprinter{}, nil
	case "blake2b":
		return Blake2bFingerprinter{}, nil
	}
	return nil, fmt.Errorf("unknown fingerprint %q", name)
}

// NewBlake2bFingerprinter returns a keyed BLAKE2b-256 fingerprinter.
func NewBlake2bFingerprinter(key string) (Blake2bFingerprinter, error) {
	if len(key) > blake2b.Size {
		return Blake2bFingerprinter{}, fmt.Errorf("fingerprint key is longer than %d bytes", blake2b.Size)
	}
	return Blake2bFingerprinter{Key: []byte(key)}, nil
}

// Normalize trims surrounding whitespace and case-folds a code.
func Normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// Registry turns plaintext answers into fingerprinted codes and validates
// submissions against them.
type Registry struct {
	fp Fingerprinter
}

func NewRegistry(fp Fingerprinter) *Registry {
	if fp == nil {
		fp = MD5Fingerprinter{}
	}
	return &Registry{fp: fp}
}

func (r *Registry) Fingerprint(plaintext string) string {
	return r.fp.Fingerprint(Normalize(plaintext))
}

// Codes builds the ordered codes of a level. Two answers that normalize to
// the same fingerprint are rejected.
func (r *Registry) Codes(levelID uuid.UUID, defs []CodeDefinition) ([]*Code, error) {
	seen := make(map[string]int, len(defs))
	codes := make([]*Code, 0, len(defs))
	for i, d := range defs {
		if Normalize(d.Value) == "" {
			return nil, fmt.Errorf("%w: code %d is empty", ErrInvalidGame, i+1)
		}
		fp := r.Fingerprint(d.Value)
		if prev, ok := seen[fp]; ok {
			return nil, fmt.Errorf("%w: codes %d and %d", ErrDuplicateCode, prev+1, i+1)
		}
		seen[fp] = i
		codes = append(codes, &Code{
			ID:          uuid.New(),
			LevelID:     levelID,
			Position:    i,
			Fingerprint: fp,
			Bonus:       d.Bonus,
		})
	}
	return codes, nil
}

// Validate returns the level code matching plaintext. It does not look at
// the game status.
func (r *Registry) Validate(level *Level, plaintext string) (*Code, error) {
	if Normalize(plaintext) == "" {
		return nil, ErrCodeNotFound
	}
	fp := r.Fingerprint(plaintext)
	for _, c := range level.Codes {
		if c.Fingerprint == fp {
			return c, nil
		}
	}
	return nil, ErrCodeNotFound
}
