package keycodec_test

import (
	"bytes"
	"testing"

	"github.com/bobboyms/bitdb/pkg/keycodec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Tag values mirror the MVCC variants in spec.md §3, used here only to
// exercise the codec's ordering/round-trip properties in isolation from the
// mvcc package.
const (
	tagNextVersion byte = 0
	tagTxnActive   byte = 1
	tagTxnWrite    byte = 2
	tagVersion     byte = 3
)

func TestEncodeVersionMatchesSpecVector(t *testing.T) {
	// spec.md §8 S5: encode(Version("abc", 11)) =
	// [3, 97, 98, 99, 0, 0, 0, 0, 0, 0, 0, 0, 0, 11]
	got := keycodec.NewEncoder().Tag(tagVersion).Bytes([]byte("abc")).Uint64(11).Finish()
	want := []byte{3, 97, 98, 99, 0, 0, 0, 0, 0, 0, 0, 0, 0, 11}
	assert.Equal(t, want, got)
}

func TestEncodeTxnActiveMatchesSpecVector(t *testing.T) {
	// spec.md §8 S5: encode(TxnActive(1)) = [1, 0, 0, 0, 0, 0, 0, 0, 1]
	got := keycodec.NewEncoder().Tag(tagTxnActive).Uint64(1).Finish()
	want := []byte{1, 0, 0, 0, 0, 0, 0, 0, 1}
	assert.Equal(t, want, got)
}

func TestEncodeBytesEscapesEmbeddedZero(t *testing.T) {
	// spec.md §8 S5: encode-bytes("a\x00b") = 97, 0, 255, 98, 0, 0
	got := keycodec.NewEncoder().Bytes([]byte("a\x00b")).Finish()
	want := []byte{97, 0, 255, 98, 0, 0}
	assert.Equal(t, want, got)
}

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		enc  func() []byte
		dec  func(d *keycodec.Decoder) error
	}{
		{
			name: "tag+bytes+uint64",
			enc: func() []byte {
				return keycodec.NewEncoder().Tag(tagVersion).Bytes([]byte("hello\x00world")).Uint64(42).Finish()
			},
			dec: func(d *keycodec.Decoder) error {
				tag, err := d.Tag()
				require.NoError(t, err)
				assert.Equal(t, tagVersion, tag)
				b, err := d.Bytes()
				require.NoError(t, err)
				assert.Equal(t, []byte("hello\x00world"), b)
				v, err := d.Uint64()
				require.NoError(t, err)
				assert.Equal(t, uint64(42), v)
				return nil
			},
		},
		{
			name: "tag+uint64+bytes",
			enc: func() []byte {
				return keycodec.NewEncoder().Tag(tagTxnWrite).Uint64(7).Bytes([]byte("key\x00one")).Finish()
			},
			dec: func(d *keycodec.Decoder) error {
				tag, _ := d.Tag()
				assert.Equal(t, tagTxnWrite, tag)
				v, _ := d.Uint64()
				assert.Equal(t, uint64(7), v)
				b, _ := d.Bytes()
				assert.Equal(t, []byte("key\x00one"), b)
				return nil
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded := tc.enc()
			d := keycodec.NewDecoder(encoded)
			require.NoError(t, tc.dec(d))
			assert.True(t, d.Done())
		})
	}
}

func TestOrderPreservingUint64(t *testing.T) {
	pairs := [][2]uint64{{0, 1}, {1, 2}, {254, 255}, {255, 256}, {1 << 40, 1<<40 + 1}}
	for _, p := range pairs {
		a := keycodec.NewEncoder().Uint64(p[0]).Finish()
		b := keycodec.NewEncoder().Uint64(p[1]).Finish()
		assert.True(t, bytes.Compare(a, b) < 0, "expected encode(%d) < encode(%d)", p[0], p[1])
	}
}

func TestOrderPreservingBytes(t *testing.T) {
	pairs := [][2]string{
		{"a", "b"},
		{"abc", "abd"},
		{"ab", "abc"},
		{"a\x00", "a\x00b"}, // embedded zero still orders correctly once escaped
	}
	for _, p := range pairs {
		a := keycodec.NewEncoder().Bytes([]byte(p[0])).Finish()
		b := keycodec.NewEncoder().Bytes([]byte(p[1])).Finish()
		assert.True(t, bytes.Compare(a, b) < 0, "expected encode(%q) < encode(%q), got %v vs %v", p[0], p[1], a, b)
	}
}

func TestOrderPreservingTuple(t *testing.T) {
	// Version("abc", 1) < Version("abc", 2) < Version("abd", 0)
	v1 := keycodec.NewEncoder().Tag(tagVersion).Bytes([]byte("abc")).Uint64(1).Finish()
	v2 := keycodec.NewEncoder().Tag(tagVersion).Bytes([]byte("abc")).Uint64(2).Finish()
	v3 := keycodec.NewEncoder().Tag(tagVersion).Bytes([]byte("abd")).Uint64(0).Finish()

	assert.True(t, bytes.Compare(v1, v2) < 0)
	assert.True(t, bytes.Compare(v2, v3) < 0)
}

func TestTruncateTerminatorPrefixTrick(t *testing.T) {
	full := keycodec.NewEncoder().Tag(tagVersion).Bytes([]byte("k")).Uint64(5).Finish()
	prefix := keycodec.TruncateTerminator(keycodec.NewEncoder().Tag(tagVersion).Bytes([]byte("k")).Finish())

	assert.True(t, bytes.HasPrefix(full, prefix))

	// With its terminator truncated, the prefix also matches a longer user
	// key that begins with "k": this is what lets a prefix scan find every
	// key under a user prefix.
	other := keycodec.NewEncoder().Tag(tagVersion).Bytes([]byte("k2")).Uint64(5).Finish()
	assert.True(t, bytes.HasPrefix(other, prefix))
}

func TestDecodeErrors(t *testing.T) {
	_, err := keycodec.NewDecoder(nil).Tag()
	assert.Error(t, err)

	_, err = keycodec.NewDecoder([]byte{1, 2, 3}).Uint64()
	assert.Error(t, err)

	_, err = keycodec.NewDecoder([]byte("no terminator")).Bytes()
	assert.Error(t, err)

	_, err = keycodec.NewDecoder([]byte{'a', 0x00, 0x01}).Bytes()
	assert.Error(t, err, "invalid escape continuation byte must be rejected")
}
