package referralcode

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	DefaultLength = 8
	MinLength     = 4
	MaxLength     = 32

	// largest multiple of len(alphabet) that fits in a byte; bytes above it are
	// dropped so every symbol stays equally likely.
	rejectAbove = 256 - 256%len(alphabet)
)

// Generator produces referral code candidates. Uniqueness is enforced by the
// store when the user is inserted, not here.
type Generator interface {
	Generate() (string, error)
}

// Random builds fixed-length codes over [A-Za-z0-9] from random UUID bytes.
type Random struct {
	length int
}

func NewRandom(length int) (*Random, error) {
	if length == 0 {
		length = DefaultLength
	}
	if length < MinLength || length > MaxLength {
		return nil, fmt.Errorf("referral code length must be between %d and %d, got %d", MinLength, MaxLength, length)
	}
	return &Random{length: length}, nil
}

func (g *Random) Length() int {
	return g.length
}

func (g *Random) Generate() (string, error) {
	out := make([]byte, 0, g.length)
	for len(out) < g.length {
		id, err := uuid.NewRandom()
		if err != nil {
			return "", fmt.Errorf("referral code entropy: %w", err)
		}
		for i, b := range id {
			// bytes 6 and 8 carry the UUID version and variant bits
			if i == 6 || i == 8 {
				continue
			}
			if int(b) >= rejectAbove {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == g.length {
				break
			}
		}
	}
	return string(out), nil
}

// Valid reports whether code is non-empty and only uses [A-Za-z0-9].
func Valid(code string) bool {
	if code == "" {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
