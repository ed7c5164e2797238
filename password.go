package account

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Argon2Params are the argon2id cost parameters
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params follows the RFC 9106 second recommended option
var DefaultArgon2Params = Argon2Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// Argon2Hasher hashes passwords with argon2id and encodes them
// in the PHC string format.
type Argon2Hasher struct {
	Params Argon2Params
}

var _ PasswordHasher = Argon2Hasher{}

// NewArgon2Hasher returns a hasher with the default parameters
func NewArgon2Hasher() Argon2Hasher {
	return Argon2Hasher{Params: DefaultArgon2Params}
}

func (h Argon2Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	p := h.Params
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.Memory,
		p.Iterations,
		p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (h Argon2Hasher) Compare(password, hash string) error {
	p, salt, key, err := decodeArgon2Hash(hash)
	if err != nil {
		return err
	}

	other := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	if subtle.ConstantTimeCompare(key, other) != 1 {
		return ErrMismatchedHashAndPassword
	}
	return nil
}

func decodeArgon2Hash(hash string) (Argon2Params, []byte, []byte, error) {
	var p Argon2Params
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return p, nil, nil, ErrUnsupportedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, ErrUnsupportedHash
	}
	if version != argon2.Version {
		return p, nil, nil, ErrUnsupportedHash
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return p, nil, nil, ErrUnsupportedHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, ErrUnsupportedHash
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return p, nil, nil, ErrUnsupportedHash
	}

	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(key))
	return p, salt, key, nil
}

// BcryptHasher hashes passwords with bcrypt
type BcryptHasher struct {
	Cost int
}

var _ PasswordHasher = BcryptHasher{}

func (h BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	out, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(out), err
}

func (h BcryptHasher) Compare(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// MultiHasher hashes with the first hasher and verifies with whichever
// hasher understands the stored format.
type MultiHasher struct {
	Primary PasswordHasher
	Legacy  []PasswordHasher
}

func (m MultiHasher) Hash(password string) (string, error) {
	return m.Primary.Hash(password)
}

func (m MultiHasher) Compare(password, hash string) error {
	if strings.HasPrefix(hash, "$argon2id$") {
		return m.compareWith(password, hash, isArgon2)
	}
	return m.compareWith(password, hash, isBcrypt)
}

func (m MultiHasher) compareWith(password, hash string, match func(PasswordHasher) bool) error {
	for _, h := range append([]PasswordHasher{m.Primary}, m.Legacy...) {
		if match(h) {
			return h.Compare(password, hash)
		}
	}
	return ErrUnsupportedHash
}

func isArgon2(h PasswordHasher) bool {
	_, ok := h.(Argon2Hasher)
	return ok
}

func isBcrypt(h PasswordHasher) bool {
	_, ok := h.(BcryptHasher)
	return ok
}

// DefaultPasswordHasher hashes new passwords with argon2id and still
// accepts bcrypt hashes.
func DefaultPasswordHasher() PasswordHasher {
	return MultiHasher{
		Primary: NewArgon2Hasher(),
		Legacy:  []PasswordHasher{BcryptHasher{}},
	}
}

// HashPassword will generate a password hash with the default hasher
func HashPassword(password string) (string, error) {
	return DefaultPasswordHasher().Hash(password)
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	return DefaultPasswordHasher().Compare(password, hash)
}
