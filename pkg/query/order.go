package query

import (
	"cmp"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/marmos91/cephodm/pkg/odm"
)

// Sortable field names.
const (
	FieldBucket   = "bucket"
	FieldID       = "id"
	FieldBin      = "bin"
	FieldMetadata = "metadata"
	FieldName     = "name"
)

// Direction values. Any value >= 0 is ascending.
const (
	Ascending  = 1
	Descending = -1
)

// OrderKey is one sort key. A key with Nested sorts by entries of a map
// field, such as metadata.author.
type OrderKey struct {
	Field     string
	Direction int
	Nested    []OrderKey
}

// Asc sorts by field ascending.
func Asc(field string) OrderKey {
	return OrderKey{Field: field, Direction: Ascending}
}

// Desc sorts by field descending.
func Desc(field string) OrderKey {
	return OrderKey{Field: field, Direction: Descending}
}

// Nested sorts by entries of the map field, earlier keys first.
func Nested(field string, keys ...OrderKey) OrderKey {
	return OrderKey{Field: field, Nested: keys}
}

// Order is a list of sort keys; earlier keys take priority.
type Order []OrderKey

// By builds an Order.
func By(keys ...OrderKey) Order {
	return Order(keys)
}

var (
	fileOrderFields   = mapset.NewSet(FieldBucket, FieldID, FieldBin, FieldMetadata)
	nestedOrderFields = mapset.NewSet(FieldMetadata)
	bucketOrderFields = mapset.NewSet(FieldName)
)

// ValidateFileOrder checks o against the file fields.
func (o Order) ValidateFileOrder() error {
	return o.validate(fileOrderFields)
}

// ValidateBucketOrder checks o against the bucket fields.
func (o Order) ValidateBucketOrder() error {
	return o.validate(bucketOrderFields)
}

func (o Order) validate(allowed mapset.Set[string]) error {
	for _, k := range o {
		if !allowed.Contains(k.Field) {
			return odm.InvalidArgument("cannot order by %q", k.Field)
		}
		isNested := nestedOrderFields.Contains(k.Field)
		if isNested && len(k.Nested) == 0 {
			return odm.InvalidArgument("ordering by %q needs nested keys", k.Field)
		}
		if !isNested && len(k.Nested) > 0 {
			return odm.InvalidArgument("field %q has no nested keys", k.Field)
		}
		for _, n := range k.Nested {
			if n.Field == "" || len(n.Nested) > 0 {
				return odm.InvalidArgument("invalid nested order key under %q", k.Field)
			}
		}
	}
	return nil
}

// Record exposes the values an Order compares. key is the nested entry
// for map fields and "" otherwise. Missing values are "".
type Record interface {
	OrderValue(field, key string) string
}

// Sort stable-sorts records by o using ordinal string comparison.
func Sort[R Record](records []R, o Order) {
	if len(o) == 0 {
		return
	}
	slices.SortStableFunc(records, func(a, b R) int {
		return o.compare(a, b)
	})
}

func (o Order) compare(a, b Record) int {
	for _, k := range o {
		if len(k.Nested) > 0 {
			for _, n := range k.Nested {
				if c := directed(n.Direction, cmp.Compare(a.OrderValue(k.Field, n.Field), b.OrderValue(k.Field, n.Field))); c != 0 {
					return c
				}
			}
			continue
		}
		if c := directed(k.Direction, cmp.Compare(a.OrderValue(k.Field, ""), b.OrderValue(k.Field, ""))); c != 0 {
			return c
		}
	}
	return 0
}

func directed(direction, c int) int {
	if direction < 0 {
		return -c
	}
	return c
}

// MatchMetadata reports whether object carries every wanted key with the
// exact wanted value.
func MatchMetadata(object, wanted map[string]string) bool {
	for k, v := range wanted {
		got, ok := object[k]
		if !ok || got != v {
			return false
		}
	}
	return true
}
