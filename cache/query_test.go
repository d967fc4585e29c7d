package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/goliatone/go-rememberable/pkg/testsupport"
)

type identityFixture struct {
	Cases []struct {
		Name        string `json:"name"`
		Connection  string `json:"connection"`
		SQL         string `json:"sql"`
		Bindings    []any  `json:"bindings"`
		Prefix      string `json:"prefix"`
		Serialized  string `json:"serialized"`
		ExpectedKey string `json:"expectedKey"`
	} `json:"cases"`
}

func TestDeriveKey_Fixtures(t *testing.T) {
	var fixtures identityFixture
	testsupport.LoadFixtureJSON(t, testsupport.FixturePath("identity_keys.json"), &fixtures)

	if len(fixtures.Cases) == 0 {
		t.Fatal("no fixture cases loaded")
	}

	serializer := NewTextSerializer()
	for _, tc := range fixtures.Cases {
		t.Run(tc.Name, func(t *testing.T) {
			serialized, err := serializer.SerializeBindings(tc.Bindings)
			if err != nil {
				t.Fatalf("SerializeBindings() error = %v", err)
			}
			if string(serialized) != tc.Serialized {
				t.Errorf("serialized = %s, want %s", serialized, tc.Serialized)
			}

			q := Identity{Connection: tc.Connection, Statement: tc.SQL, Args: tc.Bindings}
			key, err := DeriveKey(tc.Prefix, q, serializer)
			if err != nil {
				t.Fatalf("DeriveKey() error = %v", err)
			}
			if key != tc.ExpectedKey {
				t.Errorf("DeriveKey() = %s, want %s", key, tc.ExpectedKey)
			}
		})
	}
}

func TestDeriveKey_MatchesDefinition(t *testing.T) {
	serializer := NewMsgpackSerializer()
	q := Identity{Connection: "default", Statement: "SELECT * FROM users WHERE id = ?", Args: []any{42}}

	serialized, err := serializer.SerializeBindings(q.Args)
	if err != nil {
		t.Fatalf("SerializeBindings() error = %v", err)
	}
	sum := sha256.Sum256([]byte("default" + "SELECT * FROM users WHERE id = ?" + string(serialized)))
	want := "dt:" + hex.EncodeToString(sum[:])

	got, err := DeriveKey("dt", q, serializer)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	if got != want {
		t.Errorf("DeriveKey() = %s, want %s", got, want)
	}
}

func TestDeriveKey_Determinism(t *testing.T) {
	q := Identity{Connection: "default", Statement: "SELECT * FROM posts WHERE user_id = ? AND tag IN (?)", Args: []any{7, []string{"go", "sql"}}}

	first, err := DeriveKey(DefaultPrefix, q, nil)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	for i := 0; i < 50; i++ {
		again, _ := DeriveKey(DefaultPrefix, q, nil)
		if again != first {
			t.Fatalf("derived key changed between calls: %s != %s", first, again)
		}
	}

	if !strings.HasPrefix(first, DefaultPrefix+":") {
		t.Errorf("expected default prefix, got %s", first)
	}
}

func TestDeriveKey_Distinctness(t *testing.T) {
	base := Identity{Connection: "default", Statement: "SELECT * FROM users WHERE id = ?", Args: []any{42}}

	variants := map[string]Identity{
		"connection": {Connection: "replica", Statement: base.Statement, Args: base.Args},
		"sql":        {Connection: base.Connection, Statement: "SELECT id FROM users WHERE id = ?", Args: base.Args},
		"binding":    {Connection: base.Connection, Statement: base.Statement, Args: []any{43}},
		"arity":      {Connection: base.Connection, Statement: base.Statement, Args: []any{42, 42}},
	}

	for _, serializer := range []BindingSerializer{NewMsgpackSerializer(), NewTextSerializer()} {
		baseKey, err := DeriveKey("dt", base, serializer)
		if err != nil {
			t.Fatalf("DeriveKey() error = %v", err)
		}
		for name, q := range variants {
			key, err := DeriveKey("dt", q, serializer)
			if err != nil {
				t.Fatalf("DeriveKey(%s) error = %v", name, err)
			}
			if key == baseKey {
				t.Errorf("changing %s did not change the key", name)
			}
		}
	}
}

func TestIdentityHash_NilQuery(t *testing.T) {
	if _, err := IdentityHash(nil, nil); err == nil {
		t.Error("expected error for nil query")
	}
}
