package scenario

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/wesleyorama2/swarm/internal/session"
)

// Expr resolves a value against a user's session.
type Expr interface {
	Resolve(s *session.Session) (session.Value, error)
}

type literal struct{ v session.Value }

func (l literal) Resolve(*session.Session) (session.Value, error) { return l.v, nil }

// Lit is a constant expression.
func Lit(v session.Value) Expr { return literal{v: v} }

// Text is a constant string expression.
func Text(s string) Expr { return literal{v: session.String(s)} }

type keyExpr struct{ key string }

func (k keyExpr) Resolve(s *session.Session) (session.Value, error) { return s.Lookup(k.key) }

// Key resolves to the session value stored under key.
func Key(key string) Expr { return keyExpr{key: key} }

// Template interpolates {{key}} placeholders from the session. A template
// without placeholders is a literal.
type Template struct {
	parts []templatePart
}

type templatePart struct {
	text string
	key  string
}

// ParseTemplate splits raw into literal text and {{key}} references.
func ParseTemplate(raw string) (*Template, error) {
	t := &Template{}
	rest := raw
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			if rest != "" {
				t.parts = append(t.parts, templatePart{text: rest})
			}
			return t, nil
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			return nil, fmt.Errorf("unterminated placeholder in %q", raw)
		}
		if start > 0 {
			t.parts = append(t.parts, templatePart{text: rest[:start]})
		}
		key := strings.TrimSpace(rest[start+2 : start+end])
		if key == "" {
			return nil, fmt.Errorf("empty placeholder in %q", raw)
		}
		t.parts = append(t.parts, templatePart{key: key})
		rest = rest[start+end+2:]
	}
}

// MustTemplate is ParseTemplate for templates known to be valid.
func MustTemplate(raw string) *Template {
	t, err := ParseTemplate(raw)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Template) raw() string {
	var sb strings.Builder
	for _, p := range t.parts {
		if p.key != "" {
			sb.WriteString("{{" + p.key + "}}")
		} else {
			sb.WriteString(p.text)
		}
	}
	return sb.String()
}

// Keys returns the session keys referenced by the template.
func (t *Template) Keys() []string {
	var keys []string
	for _, p := range t.parts {
		if p.key != "" {
			keys = append(keys, p.key)
		}
	}
	return keys
}

// Resolve renders the template. A template made of a single placeholder
// yields the session value unchanged, so "{{file}}" keeps a bytes value.
func (t *Template) Resolve(s *session.Session) (session.Value, error) {
	if len(t.parts) == 1 && t.parts[0].key != "" {
		return s.Lookup(t.parts[0].key)
	}
	var sb strings.Builder
	for _, p := range t.parts {
		if p.key == "" {
			sb.WriteString(p.text)
			continue
		}
		v, err := s.Lookup(p.key)
		if err != nil {
			return session.Value{}, err
		}
		sb.WriteString(v.String())
	}
	return session.String(sb.String()), nil
}

// RandomInt draws an integer in [Min, Max] from the session's random source.
type RandomInt struct {
	Min, Max int
}

func (r RandomInt) Resolve(s *session.Session) (session.Value, error) {
	if r.Max < r.Min {
		return session.Value{}, fmt.Errorf("random range [%d, %d] is empty", r.Min, r.Max)
	}
	return session.Int(int64(s.Rand().IntRange(r.Min, r.Max))), nil
}

// JSON builds a JSON object body from named expressions. Numbers and
// booleans are encoded as JSON numbers and booleans, everything else as
// strings.
type JSON map[string]Expr

func (j JSON) Resolve(s *session.Session) (session.Value, error) {
	keys := make([]string, 0, len(j))
	for k := range j {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		v, err := j[k].Resolve(s)
		if err != nil {
			return session.Value{}, err
		}
		if i > 0 {
			sb.WriteByte(',')
		}
		name, _ := json.Marshal(k)
		sb.Write(name)
		sb.WriteByte(':')
		sb.Write(encodeJSON(v))
	}
	sb.WriteByte('}')
	return session.Bytes([]byte(sb.String())), nil
}

func encodeJSON(v session.Value) []byte {
	switch v.Kind() {
	case session.KindNumber, session.KindBool:
		return []byte(v.String())
	case session.KindBytes:
		if json.Valid(v.Bytes()) {
			return v.Bytes()
		}
	}
	out, _ := json.Marshal(v.String())
	return out
}
