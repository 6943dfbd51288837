package entity

import "context"

// PropertyChangedListener observes changes to a file's bin or metadata.
type PropertyChangedListener interface {
	PropertyChanged(f *File, property string, oldValue, newValue any)
}

// IdentifierChangedListener observes changes to a file's bucket or id
// before they are applied. Returning an error vetoes the change.
type IdentifierChangedListener interface {
	IdentifierChanged(f *File, property, oldValue, newValue string) error
}

// LazyLoadListener populates the unloaded fields of a file, typically with
// a single point lookup. Implementations call File.Populate.
type LazyLoadListener interface {
	LoadFile(ctx context.Context, f *File) error
}

// PropertyChangedFunc adapts a function to PropertyChangedListener.
type PropertyChangedFunc func(f *File, property string, oldValue, newValue any)

func (fn PropertyChangedFunc) PropertyChanged(f *File, property string, oldValue, newValue any) {
	fn(f, property, oldValue, newValue)
}

// IdentifierChangedFunc adapts a function to IdentifierChangedListener.
type IdentifierChangedFunc func(f *File, property, oldValue, newValue string) error

func (fn IdentifierChangedFunc) IdentifierChanged(f *File, property, oldValue, newValue string) error {
	return fn(f, property, oldValue, newValue)
}

// LazyLoadFunc adapts a function to LazyLoadListener.
type LazyLoadFunc func(ctx context.Context, f *File) error

func (fn LazyLoadFunc) LoadFile(ctx context.Context, f *File) error {
	return fn(ctx, f)
}
