package querycache

import (
	"context"
	"reflect"
	"strings"
	"unicode"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-rememberable/cache"
	"github.com/uptrace/bun"
)

// Raw returns the identity of a raw SQL statement run on connection.
func Raw(connection, sql string, args ...any) cache.Identity {
	return cache.Identity{Connection: connection, Statement: sql, Args: args}
}

// RawQuerier is the subset of a go-repository-bun repository needed to run
// raw statements.
type RawQuerier[T any] interface {
	Raw(ctx context.Context, sql string, args ...any) ([]T, error)
}

var _ RawQuerier[any] = (repository.Repository[any])(nil)

// RepositoryRaw pairs the identity of a raw statement with an executor that
// runs it through repo.
func RepositoryRaw[T any](repo RawQuerier[T], connection, sql string, args ...any) (cache.Identity, ExecuteFn[[]T]) {
	identity := Raw(connection, sql, args...)
	exec := func(ctx context.Context) ([]T, error) {
		return repo.Raw(ctx, sql, args...)
	}
	return identity, exec
}

// ModelTag returns a snake_case tag for T's type name, e.g. "user_profile"
// for UserProfile, *UserProfile or []UserProfile. Type arguments of a
// generic type are dropped, so Page[User] and Page[Order] share "page".
func ModelTag[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		t = t.Elem()
	}
	return tagName(t.Name())
}

// tagName lower cases a Go type name, starting a new word at each upper case
// letter that follows a lower case letter or digit, or that ends an acronym.
func tagName(typeName string) string {
	if i := strings.IndexByte(typeName, '['); i >= 0 {
		typeName = typeName[:i]
	}

	runes := []rune(typeName)
	var b strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			endsAcronym := unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || endsAcronym {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

type bunQuery struct {
	q *bun.SelectQuery
}

// BunQuery adapts a bun select query. Bun interpolates arguments into the
// statement, so the SQL text carries the bindings and Bindings is empty.
// The connection name is the dialect name.
func BunQuery(q *bun.SelectQuery) cache.Query {
	return bunQuery{q: q}
}

func (b bunQuery) ConnectionName() string {
	return b.q.DB().Dialect().Name().String()
}

func (b bunQuery) SQL() string {
	return b.q.String()
}

func (b bunQuery) Bindings() []any {
	return nil
}

// BunScan returns an executor that scans q into a slice of T.
func BunScan[T any](q *bun.SelectQuery) ExecuteFn[[]T] {
	return func(ctx context.Context) ([]T, error) {
		var rows []T
		if err := q.Scan(ctx, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	}
}
