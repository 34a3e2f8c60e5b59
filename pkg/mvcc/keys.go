package mvcc

import (
	"encoding/binary"

	"github.com/bobboyms/bitdb/pkg/dberrors"
	"github.com/bobboyms/bitdb/pkg/keycodec"
)

// The four tagged key variants the MVCC layer writes into the underlying
// engine. Tag values are the variant's declared index; they must fit in
// one byte and their relative order is load-bearing (keys of different
// variants never need to compare against each other, but the tag byte
// keeps them from ever colliding).
const (
	tagNextVersion byte = 0
	tagTxnActive   byte = 1
	tagTxnWrite    byte = 2
	tagVersion     byte = 3
)

func encodeNextVersion() []byte {
	return keycodec.NewEncoder().Tag(tagNextVersion).Finish()
}

func encodeTxnActive(version uint64) []byte {
	return keycodec.NewEncoder().Tag(tagTxnActive).Uint64(version).Finish()
}

// txnActivePrefix bounds a scan over every TxnActive(*) record.
func txnActivePrefix() []byte {
	return []byte{tagTxnActive}
}

func decodeTxnActiveVersion(encodedKey []byte) (uint64, error) {
	d := keycodec.NewDecoder(encodedKey)
	if _, err := d.Tag(); err != nil {
		return 0, err
	}
	return d.Uint64()
}

func encodeTxnWrite(version uint64, userKey []byte) []byte {
	return keycodec.NewEncoder().Tag(tagTxnWrite).Uint64(version).Bytes(userKey).Finish()
}

// txnWritePrefix bounds a scan over every TxnWrite(version, *) record for
// one version: the fixed tag+version encoding has no trailing terminator
// of its own, so it is already the minimal prefix.
func txnWritePrefix(version uint64) []byte {
	return keycodec.NewEncoder().Tag(tagTxnWrite).Uint64(version).Finish()
}

func decodeTxnWriteUserKey(encodedKey []byte) ([]byte, error) {
	d := keycodec.NewDecoder(encodedKey)
	if _, err := d.Tag(); err != nil {
		return nil, err
	}
	if _, err := d.Uint64(); err != nil {
		return nil, err
	}
	return d.Bytes()
}

func encodeVersion(userKey []byte, version uint64) []byte {
	return keycodec.NewEncoder().Tag(tagVersion).Bytes(userKey).Uint64(version).Finish()
}

// versionPrefix is the "prefix trick" of §4.D: the encoding of Version(k)
// with its trailing string terminator truncated, matching the encodings of
// every Version(k', *) record whose user key k' begins with k.
func versionPrefix(userKey []byte) []byte {
	return keycodec.TruncateTerminator(keycodec.NewEncoder().Tag(tagVersion).Bytes(userKey).Finish())
}

func decodeVersionTail(encodedKey []byte) (uint64, error) {
	d := keycodec.NewDecoder(encodedKey)
	if _, err := d.Tag(); err != nil {
		return 0, err
	}
	if _, err := d.Bytes(); err != nil {
		return 0, err
	}
	return d.Uint64()
}

// decodeVersionUserKey recovers the original user key from an encoded
// Version(k, v) key, undoing the Bytes() escaping.
func decodeVersionUserKey(encodedKey []byte) ([]byte, error) {
	d := keycodec.NewDecoder(encodedKey)
	if _, err := d.Tag(); err != nil {
		return nil, err
	}
	return d.Bytes()
}

// encodeUint64/decodeUint64 encode the NextVersion counter's value payload:
// a plain fixed-width blob, not a key, so no order-preservation is needed,
// but big-endian is kept for consistency with the rest of the codec.
func encodeUint64(v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return tmp[:]
}

func decodeUint64(raw []byte) (uint64, error) {
	if len(raw) != 8 {
		return 0, &dberrors.DecodeError{Reason: "NextVersion value must be 8 bytes"}
	}
	return binary.BigEndian.Uint64(raw), nil
}

// encodeOptional encodes Some(value) as 1||value and None as the single
// byte 0. This is the Version record's value payload, not a key, so it has
// no order-preservation requirement.
func encodeOptional(value []byte, present bool) []byte {
	if !present {
		return []byte{0}
	}
	out := make([]byte, 0, 1+len(value))
	out = append(out, 1)
	out = append(out, value...)
	return out
}

func decodeOptional(raw []byte) (value []byte, present bool) {
	if len(raw) == 0 || raw[0] == 0 {
		return nil, false
	}
	return append([]byte(nil), raw[1:]...), true
}
