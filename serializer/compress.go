package serializer

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
)

// Compress applies raw DEFLATE to data, used when the COMPRESSED flag is
// set on an outbound message (spec.md §4.1).
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress, used when decoding a message with the
// COMPRESSED flag set.
func Decompress(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	return io.ReadAll(r)
}
