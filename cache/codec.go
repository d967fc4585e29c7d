package cache

import (
	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec converts result sets to and from the bytes handed to a Backend.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type msgpackCodec struct{}

// NewMsgpackCodec returns the default Codec.
func NewMsgpackCodec() Codec {
	return msgpackCodec{}
}

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "encode %T", v), ErrCodec)
	}
	return data, nil
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return errors.Mark(errors.Wrapf(err, "decode into %T", v), ErrCodec)
	}
	return nil
}

// Encode marshals v with codec, falling back to the default codec when nil.
func Encode[T any](codec Codec, v T) ([]byte, error) {
	if codec == nil {
		codec = NewMsgpackCodec()
	}
	return codec.Marshal(v)
}

// Decode is the typed counterpart of Encode.
func Decode[T any](codec Codec, data []byte) (T, error) {
	if codec == nil {
		codec = NewMsgpackCodec()
	}
	var out T
	if err := codec.Unmarshal(data, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
