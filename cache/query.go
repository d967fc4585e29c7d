package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/cockroachdb/errors"
)

// DefaultPrefix is the key namespace used when none is configured.
const DefaultPrefix = "rememberabledatatables"

// KeySeparator joins the prefix and the key body.
const KeySeparator = ":"

// Query identifies a result set for caching purposes. It is used only to derive
// a cache key and is never stored.
type Query interface {
	ConnectionName() string
	SQL() string
	Bindings() []any
}

// Identity is a plain Query value.
type Identity struct {
	Connection string
	Statement  string
	Args       []any
}

var _ Query = Identity{}

func (i Identity) ConnectionName() string { return i.Connection }
func (i Identity) SQL() string            { return i.Statement }
func (i Identity) Bindings() []any        { return i.Args }

// IdentityHash returns the hex encoded SHA-256 of the connection name, the SQL
// text and the serialized bindings, concatenated in that order.
func IdentityHash(q Query, serializer BindingSerializer) (string, error) {
	if q == nil {
		return "", errors.Mark(errors.New("query is nil"), ErrKeyDerivation)
	}
	if serializer == nil {
		serializer = NewMsgpackSerializer()
	}

	bindings, err := serializer.SerializeBindings(q.Bindings())
	if err != nil {
		return "", errors.Mark(errors.Wrap(err, "serialize bindings"), ErrKeyDerivation)
	}

	h := sha256.New()
	io.WriteString(h, q.ConnectionName())
	io.WriteString(h, q.SQL())
	h.Write(bindings)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DeriveKey builds prefix + ":" + IdentityHash(q).
func DeriveKey(prefix string, q Query, serializer BindingSerializer) (string, error) {
	hash, err := IdentityHash(q, serializer)
	if err != nil {
		return "", err
	}
	return PrefixedKey(prefix, hash), nil
}

// PrefixedKey namespaces key under prefix.
func PrefixedKey(prefix, key string) string {
	return prefix + KeySeparator + key
}
