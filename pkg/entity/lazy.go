package entity

// Lazy is a field that is either unloaded or holds a loaded value.
type Lazy[T any] struct {
	value  T
	loaded bool
}

// Loaded returns a loaded field holding v.
func Loaded[T any](v T) Lazy[T] {
	return Lazy[T]{value: v, loaded: true}
}

// Get returns the value and whether it was loaded.
func (l Lazy[T]) Get() (T, bool) {
	return l.value, l.loaded
}

func (l Lazy[T]) IsLoaded() bool {
	return l.loaded
}
