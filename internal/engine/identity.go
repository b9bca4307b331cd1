package engine

import (
	"strconv"

	"github.com/splitpilot/splitpilot/internal/store"
)

// Identity is the bucketing key for a visitor: either a known contact id or
// an anonymous visitor id. An identity with neither is invalid; there is no
// random fallback because that would break repeat-call determinism.
type Identity struct {
	ContactID *int64
	AnonID    string
}

func (id Identity) Valid() bool {
	return id.ContactID != nil || id.AnonID != ""
}

// Key returns the normalized string form used for hashing and for the
// (test, identity) uniqueness constraint. Contact ids take precedence when
// both fields are set.
func (id Identity) Key() string {
	if id.ContactID != nil {
		return "contact:" + strconv.FormatInt(*id.ContactID, 10)
	}
	return "anon:" + id.AnonID
}

// Matches reports whether this reported identity matches the identity stored
// on the assignment. A match on either field is sufficient; a mismatch on
// both is treated as fraudulent by the conversion recorder.
func (id Identity) Matches(a *store.Assignment) bool {
	if id.ContactID != nil && a.ContactID != nil && *id.ContactID == *a.ContactID {
		return true
	}
	if id.AnonID != "" && a.AnonID != "" && id.AnonID == a.AnonID {
		return true
	}
	return false
}

// Bucket deterministically maps the identity onto a variant: even hash -> A,
// odd hash -> B.
func (id Identity) Bucket() store.Variant {
	if hashKey(id.Key())%2 == 0 {
		return store.VariantA
	}
	return store.VariantB
}

// hashKey is a rolling multiply-and-add hash over the key's bytes. Not
// cryptographic; it only needs determinism and enough mixing that the low
// bit is an unbiased coin across a population of identities.
func hashKey(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return h
}
