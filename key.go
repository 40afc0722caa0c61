package zenify

import (
	"fmt"
	"reflect"
)

// Key identifies a binding slot: a service type plus an optional tag.
// An empty tag addresses the type's default (untagged) slot.
type Key struct {
	Type reflect.Type
	Tag  string
}

// KeyOf returns the binding key for T. At most one tag may be given.
func KeyOf[T any](tag ...string) Key {
	k := Key{Type: typeOf[T]()}
	if len(tag) > 0 {
		k.Tag = tag[0]
	}
	return k
}

// String renders the key as "Type" or "Type:tag", the form used in logs
// and error messages.
func (k Key) String() string {
	if k.Tag != "" {
		return fmt.Sprintf("%s:%s", formatType(k.Type), k.Tag)
	}
	return formatType(k.Type)
}

// typeOf returns the reflect.Type for T, preserving interface identity
// (reflect.TypeOf on an interface value would yield the dynamic type).
func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func formatType(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
