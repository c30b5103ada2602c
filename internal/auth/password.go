package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrMalformedHash is returned when a stored credential hash cannot be
// parsed or carries parameters outside the accepted bounds.
var ErrMalformedHash = errors.New("malformed credential hash")

// Argon2id cost for new hashes. User passwords and device secrets share it.
const (
	argonTime    = 3         // iterations
	argonMemory  = 64 * 1024 // KiB, 64 MiB
	argonThreads = 1         // parallelism
	argonKeyLen  = 32        // derived key bytes
	argonSaltLen = 16        // salt bytes
)

// Upper bounds for parameters read back from the store. A corrupted or
// planted row must not be able to make a handshake allocate gigabytes.
const (
	maxArgonTime    = 10
	maxArgonMemory  = 256 * 1024
	maxArgonThreads = 16
	minArgonKeyLen  = 16
	maxArgonKeyLen  = 64
)

// phcHash is an Argon2id hash in PHC string form:
//
//	$argon2id$v=19$m=65536,t=3,p=1$<salt>$<key>
type phcHash struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

func (h phcHash) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.memory, h.time, h.threads,
		base64.RawStdEncoding.EncodeToString(h.salt),
		base64.RawStdEncoding.EncodeToString(h.key),
	)
}

// derive computes the key for plaintext with h's salt and cost.
func (h phcHash) derive(plaintext string) []byte {
	return argon2.IDKey([]byte(plaintext), h.salt, h.time, h.memory, h.threads, uint32(len(h.key))) //nolint:gosec // G115: key length bounded by maxArgonKeyLen
}

// HashSecret hashes a user password or device secret with Argon2id.
//
// Parameters:
//   - plaintext: the password or shared secret as presented
//
// Returns:
//   - string: PHC-encoded hash, safe to store
//   - error: only if the system random source fails
func HashSecret(plaintext string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	h := phcHash{
		memory:  argonMemory,
		time:    argonTime,
		threads: argonThreads,
		salt:    salt,
		key:     make([]byte, argonKeyLen),
	}
	h.key = h.derive(plaintext)
	return h.String(), nil
}

// VerifySecret checks plaintext against a stored PHC hash in constant time.
// A false result with a nil error means the secret did not match;
// ErrMalformedHash means the stored value is unusable.
func VerifySecret(plaintext, encoded string) (bool, error) {
	h, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(h.key, h.derive(plaintext)) == 1, nil
}

func parsePHC(encoded string) (phcHash, error) {
	var h phcHash

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" { //nolint:mnd // "", alg, version, params, salt, key
		return h, fmt.Errorf("%w: expected 6 $-delimited fields", ErrMalformedHash)
	}
	if parts[1] != "argon2id" {
		return h, fmt.Errorf("%w: unsupported algorithm %q", ErrMalformedHash, parts[1])
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return h, fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, parts[2])
	}

	for _, field := range strings.Split(parts[3], ",") {
		name, value, ok := strings.Cut(field, "=")
		if !ok {
			return h, fmt.Errorf("%w: parameter %q", ErrMalformedHash, field)
		}
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return h, fmt.Errorf("%w: parameter %q", ErrMalformedHash, field)
		}
		switch name {
		case "m":
			h.memory = uint32(n)
		case "t":
			h.time = uint32(n)
		case "p":
			if n > maxArgonThreads {
				return h, fmt.Errorf("%w: parallelism %d", ErrMalformedHash, n)
			}
			h.threads = uint8(n) //nolint:gosec // G115: bounded above
		default:
			return h, fmt.Errorf("%w: unknown parameter %q", ErrMalformedHash, name)
		}
	}
	if h.time == 0 || h.time > maxArgonTime ||
		h.memory == 0 || h.memory > maxArgonMemory ||
		h.threads == 0 {
		return h, fmt.Errorf("%w: cost m=%d,t=%d,p=%d out of bounds", ErrMalformedHash, h.memory, h.time, h.threads)
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(h.salt) == 0 {
		return h, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil ||
		len(h.key) < minArgonKeyLen || len(h.key) > maxArgonKeyLen {
		return h, fmt.Errorf("%w: key", ErrMalformedHash)
	}
	return h, nil
}
