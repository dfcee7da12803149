package utils

import (
	"bytes"
	"encoding/json"
	"io"
)

// JsonReader serializes a value up front and implements io.Reader
// over the resulting JSON bytes. Handy for HTTP request bodies in
// tests, where building a bytes.Reader by hand is just noise.
type JsonReader struct {
	reader io.Reader
	err    error
}

func (r *JsonReader) Read(p []byte) (n int, err error) {
	if r.err != nil {
		return -1, r.err
	}
	return r.reader.Read(p)
}

func NewJsonReader(val interface{}) *JsonReader {
	b, err := json.Marshal(val)
	return &JsonReader{
		reader: bytes.NewReader(b),
		err:    err,
	}
}
