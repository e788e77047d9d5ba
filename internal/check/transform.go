package check

import (
	"fmt"

	"github.com/wesleyorama2/swarm/internal/session"
)

// Transform maps an extracted value before validation and saving.
type Transform func(session.Value) (session.Value, error)

// NonEmpty turns a string or byte value into true when it has at least one byte.
func NonEmpty(v session.Value) (session.Value, error) {
	switch v.Kind() {
	case session.KindString, session.KindBytes:
		return session.Bool(v.Len() > 0), nil
	default:
		return session.Value{}, fmt.Errorf("nonEmpty needs a string or bytes, got %s", v.Kind())
	}
}

// Length turns a string or byte value into its length.
func Length(v session.Value) (session.Value, error) {
	switch v.Kind() {
	case session.KindString, session.KindBytes:
		return session.Int(int64(v.Len())), nil
	default:
		return session.Value{}, fmt.Errorf("length needs a string or bytes, got %s", v.Kind())
	}
}

// NamedTransforms are the transforms addressable from a simulation file.
var NamedTransforms = map[string]Transform{
	"nonEmpty": NonEmpty,
	"length":   Length,
}
