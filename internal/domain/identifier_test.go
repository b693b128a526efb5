package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cid = "b3f1a0c2d4e6f8091a2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d5e6f7081"

func TestNormalizeConditionID_PrefixAndCase(t *testing.T) {
	a, err := NormalizeConditionID("0x" + strings.ToUpper(cid))
	require.NoError(t, err)
	b, err := NormalizeConditionID("  " + cid + " ")
	require.NoError(t, err)

	// 66 chars con 0x y 64 sin prefijo deben colapsar al mismo id
	assert.Equal(t, a, b)
	assert.Equal(t, cid, a.String())
	assert.Equal(t, "0x"+cid, a.Hex())
}

func TestNormalizeConditionID_Rejects(t *testing.T) {
	cases := map[string]string{
		"empty":       "",
		"only prefix": "0x",
		"short":       "0xabc123",
		"long":        cid + "00",
		"not hex":     strings.Repeat("z", 64),
		"placeholder": "0x" + strings.Repeat("0", 64),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NormalizeConditionID(raw)
			assert.ErrorIs(t, err, ErrMissingIdentifier)
		})
	}
}

func TestNormalizeWallet(t *testing.T) {
	w, err := NormalizeWallet("0xABCDEF0123456789abcdef0123456789ABCDEF01")
	require.NoError(t, err)
	assert.Equal(t, Wallet("0xabcdef0123456789abcdef0123456789abcdef01"), w)

	w2, err := NormalizeWallet("abcdef0123456789abcdef0123456789abcdef01")
	require.NoError(t, err)
	assert.Equal(t, w, w2)

	_, err = NormalizeWallet("0x1234")
	assert.ErrorIs(t, err, ErrDataIntegrity)
}

func TestReasonFor(t *testing.T) {
	_, err := NormalizeConditionID("")
	assert.Equal(t, RejectMissingIdentifier, ReasonFor(err))
	assert.Equal(t, RejectAmbiguousDirection, ReasonFor(ErrAmbiguousDirection))
	assert.Equal(t, RejectDataIntegrity, ReasonFor(ErrDataIntegrity))
}
