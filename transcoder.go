package gocbbridge

import (
	"encoding/json"
	"errors"

	"github.com/couchbase/gocbcore/v10"
)

// Transcoder converts between Go values and the bytes and common flags stored on the
// server.
type Transcoder interface {
	// Decode decodes a stored value into valuePtr according to flags.
	Decode(bytes []byte, flags uint32, valuePtr interface{}) error

	// Encode encodes value into stored bytes and common flags.
	Encode(value interface{}) ([]byte, uint32, error)
}

var errUnsupportedTranscoderType = errors.New("unsupported value type for transcoder")

// LegacyTranscoder stores []byte as binary, strings as strings and everything else as
// JSON, which matches how older SDKs wrote documents.
type LegacyTranscoder struct {
}

// NewLegacyTranscoder returns a new LegacyTranscoder.
func NewLegacyTranscoder() *LegacyTranscoder {
	return &LegacyTranscoder{}
}

// Decode applies legacy transcoding behaviour to decode into a Go type.
func (t *LegacyTranscoder) Decode(bytes []byte, flags uint32, valuePtr interface{}) error {
	valueType, compression := gocbcore.DecodeCommonFlags(flags)

	if compression != gocbcore.NoCompression {
		return wrapError(errUnsupportedTranscoderType, "unexpected value compression")
	}

	switch valueType {
	case gocbcore.BinaryType:
		switch typedValue := valuePtr.(type) {
		case *[]byte:
			*typedValue = bytes
			return nil
		case *interface{}:
			*typedValue = bytes
			return nil
		}
		return wrapErrorf(errUnsupportedTranscoderType, "binary datatype cannot be decoded into %T", valuePtr)
	case gocbcore.StringType:
		switch typedValue := valuePtr.(type) {
		case *string:
			*typedValue = string(bytes)
			return nil
		case *interface{}:
			*typedValue = string(bytes)
			return nil
		}
		return wrapErrorf(errUnsupportedTranscoderType, "string datatype cannot be decoded into %T", valuePtr)
	case gocbcore.JSONType:
		if raw, ok := valuePtr.(*[]byte); ok {
			*raw = bytes
			return nil
		}
		return json.Unmarshal(bytes, valuePtr)
	}

	return wrapError(errUnsupportedTranscoderType, "unexpected expectedFlags value")
}

// Encode applies legacy transcoding behavior to encode a Go type.
func (t *LegacyTranscoder) Encode(value interface{}) ([]byte, uint32, error) {
	switch typedValue := value.(type) {
	case []byte:
		return typedValue, gocbcore.EncodeCommonFlags(gocbcore.BinaryType, gocbcore.NoCompression), nil
	case *[]byte:
		return *typedValue, gocbcore.EncodeCommonFlags(gocbcore.BinaryType, gocbcore.NoCompression), nil
	case string:
		return []byte(typedValue), gocbcore.EncodeCommonFlags(gocbcore.StringType, gocbcore.NoCompression), nil
	case *string:
		return []byte(*typedValue), gocbcore.EncodeCommonFlags(gocbcore.StringType, gocbcore.NoCompression), nil
	case json.RawMessage:
		return typedValue, gocbcore.EncodeCommonFlags(gocbcore.JSONType, gocbcore.NoCompression), nil
	case *json.RawMessage:
		return *typedValue, gocbcore.EncodeCommonFlags(gocbcore.JSONType, gocbcore.NoCompression), nil
	}

	bytes, err := json.Marshal(value)
	if err != nil {
		return nil, 0, err
	}
	return bytes, gocbcore.EncodeCommonFlags(gocbcore.JSONType, gocbcore.NoCompression), nil
}

// RawBinaryTranscoder only accepts []byte values and stores them as binary.
type RawBinaryTranscoder struct {
}

// NewRawBinaryTranscoder returns a new RawBinaryTranscoder.
func NewRawBinaryTranscoder() *RawBinaryTranscoder {
	return &RawBinaryTranscoder{}
}

// Decode applies raw binary transcoding behaviour to decode into a Go type.
func (t *RawBinaryTranscoder) Decode(bytes []byte, flags uint32, valuePtr interface{}) error {
	valueType, compression := gocbcore.DecodeCommonFlags(flags)

	if compression != gocbcore.NoCompression {
		return wrapError(errUnsupportedTranscoderType, "unexpected value compression")
	}
	if valueType != gocbcore.BinaryType {
		return wrapError(errUnsupportedTranscoderType, "only binary datatype is supported by RawBinaryTranscoder")
	}

	switch typedValue := valuePtr.(type) {
	case *[]byte:
		*typedValue = bytes
		return nil
	case *interface{}:
		*typedValue = bytes
		return nil
	}
	return wrapErrorf(errUnsupportedTranscoderType, "binary datatype cannot be decoded into %T", valuePtr)
}

// Encode applies raw binary transcoding behaviour to encode a Go type.
func (t *RawBinaryTranscoder) Encode(value interface{}) ([]byte, uint32, error) {
	switch typedValue := value.(type) {
	case []byte:
		return typedValue, gocbcore.EncodeCommonFlags(gocbcore.BinaryType, gocbcore.NoCompression), nil
	case *[]byte:
		return *typedValue, gocbcore.EncodeCommonFlags(gocbcore.BinaryType, gocbcore.NoCompression), nil
	}
	return nil, 0, wrapError(ErrInvalidArgument, "only binary data is supported by RawBinaryTranscoder")
}
