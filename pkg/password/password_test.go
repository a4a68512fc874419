package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fast = &Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func TestHashAndVerify(t *testing.T) {
	h := NewHasher(fast)

	hash, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$"))
	assert.True(t, WellFormed(hash))

	require.NoError(t, h.Verify(hash, "correct horse"))
	require.ErrorIs(t, h.Verify(hash, "wrong horse"), ErrMismatch)

	again, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, hash, again, "salt must differ")

	// a hasher with other costs still verifies
	require.NoError(t, NewHasher(nil).Verify(hash, "correct horse"))
}

func TestVerifyMalformed(t *testing.T) {
	h := NewHasher(fast)
	for _, in := range []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=1024,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=x$c2FsdA$a2V5",
		"$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$",
	} {
		assert.ErrorIs(t, h.Verify(in, "x"), ErrInvalidHash, in)
		assert.False(t, WellFormed(in), in)
	}
	assert.ErrorIs(t, h.Verify("$argon2id$v=16$m=1024,t=1,p=1$c2FsdA$a2V5", "x"), ErrIncompatibleVersion)
}
