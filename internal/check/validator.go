package check

import (
	"fmt"

	"github.com/wesleyorama2/swarm/internal/session"
)

// Reason classifies a check failure.
type Reason string

const (
	ReasonMissing       Reason = "missing value"
	ReasonMismatch      Reason = "value mismatch"
	ReasonNull          Reason = "null value"
	ReasonShape         Reason = "shape mismatch"
	ReasonSchema        Reason = "schema mismatch"
	ReasonTransform     Reason = "transform failed"
	ReasonSessionKey    Reason = "missing session key"
	ReasonInvalidBody   Reason = "invalid body"
	ReasonNotApplicable Reason = "invalid check"
)

// ValidationError is returned by validators that reject a value.
type ValidationError struct {
	Reason Reason
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return string(e.Reason) + ": " + e.Detail
}

func reject(reason Reason, format string, args ...any) error {
	return &ValidationError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Validator decides whether an extracted value is acceptable. The session is
// read-only for validators.
type Validator interface {
	Validate(x Extraction, s *session.Session) error
}

// ValidatorFunc adapts a function to a Validator.
type ValidatorFunc func(x Extraction, s *session.Session) error

func (f ValidatorFunc) Validate(x Extraction, s *session.Session) error { return f(x, s) }

// Exists accepts any found value, including JSON null.
func Exists() Validator {
	return ValidatorFunc(func(Extraction, *session.Session) error { return nil })
}

// Is accepts values equal to want. Numbers and their textual form compare equal.
func Is(want session.Value) Validator {
	return ValidatorFunc(func(x Extraction, _ *session.Session) error {
		if !x.Value.Loose(want) {
			return reject(ReasonMismatch, "expected %s, found %s", describe(want), describeExtraction(x))
		}
		return nil
	})
}

// IsSession accepts values equal to the session value stored under key.
func IsSession(key string) Validator {
	return ValidatorFunc(func(x Extraction, s *session.Session) error {
		want, err := s.Lookup(key)
		if err != nil {
			return reject(ReasonSessionKey, "%q", key)
		}
		if !x.Value.Loose(want) {
			return reject(ReasonMismatch, "expected session %s=%s, found %s", key, describe(want), describeExtraction(x))
		}
		return nil
	})
}

// In accepts values equal to any of the candidates.
func In(candidates ...session.Value) Validator {
	return ValidatorFunc(func(x Extraction, _ *session.Session) error {
		for _, c := range candidates {
			if x.Value.Loose(c) {
				return nil
			}
		}
		return reject(ReasonMismatch, "%s is not one of %d candidates", describeExtraction(x), len(candidates))
	})
}

// NotNull rejects JSON null.
func NotNull() Validator {
	return ValidatorFunc(func(x Extraction, _ *session.Session) error {
		if x.Shape == ShapeNull {
			return reject(ReasonNull, "found null")
		}
		return nil
	})
}

// OfList accepts non-null JSON arrays.
func OfList() Validator { return shapeValidator(ShapeList) }

// OfObject accepts non-null JSON objects.
func OfObject() Validator { return shapeValidator(ShapeObject) }

func shapeValidator(want Shape) Validator {
	return ValidatorFunc(func(x Extraction, _ *session.Session) error {
		if x.Shape == ShapeNull {
			return reject(ReasonNull, "expected %s, found null", want)
		}
		if x.Shape != want {
			return reject(ReasonShape, "expected %s, found %s", want, x.Shape)
		}
		return nil
	})
}

// All accepts a value only when every validator does. The first rejection wins.
func All(validators ...Validator) Validator {
	return ValidatorFunc(func(x Extraction, s *session.Session) error {
		for _, v := range validators {
			if err := v.Validate(x, s); err != nil {
				return err
			}
		}
		return nil
	})
}

func describe(v session.Value) string {
	if v.Kind() == session.KindBytes {
		return fmt.Sprintf("bytes(%d)", v.Len())
	}
	if v.Kind() == session.KindString {
		return fmt.Sprintf("%q", v.String())
	}
	return v.String()
}

func describeExtraction(x Extraction) string {
	if x.Shape == ShapeNull {
		return "null"
	}
	if x.Shape == ShapeList || x.Shape == ShapeObject {
		return x.Shape.String()
	}
	return describe(x.Value)
}
