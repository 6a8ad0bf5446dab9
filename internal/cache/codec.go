package cache

import (
	"bytes"
	"compress/zlib"
	"crypto/md5"
	"encoding/hex"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// QueryHash derives the deterministic key for a (query, location) pair:
// md5 of the lowercased "query|location" string. Not a security boundary,
// just a stable short key.
func QueryHash(query, location string) string {
	sum := md5.Sum([]byte(strings.ToLower(query + "|" + location)))
	return hex.EncodeToString(sum[:])
}

// compress zlib-compresses a raw payload for at-rest storage. Nil input
// stays nil.
func compress(data []byte) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, eris.Wrap(err, "cache: compress")
	}
	if err := w.Close(); err != nil {
		return nil, eris.Wrap(err, "cache: compress close")
	}
	return buf.Bytes(), nil
}

// decompress reverses compress. A malformed payload returns an error; the
// store layers translate that into a cache miss for the affected entry.
func decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrap(err, "cache: decompress")
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "cache: decompress read")
	}
	return out, nil
}
