package auth

import "golang.org/x/crypto/bcrypt"

// Hasher hashes and verifies passwords with bcrypt. The cost factor is
// configurable; the default is acceptable for interactive login.
type Hasher struct {
	cost int
}

// NewHasher constructs a Hasher. A cost outside bcrypt's valid range
// falls back to the default cost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

func (h *Hasher) Hash(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (h *Hasher) Verify(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// dummyHash is a bcrypt hash of an unguessable throwaway value, used to
// equalize timing on the account-miss path.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// DummyVerify burns a bcrypt comparison without revealing anything.
// Called on login paths where no stored hash exists, so an account miss
// costs the same as a password mismatch.
func (h *Hasher) DummyVerify(plaintext string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(plaintext))
}
