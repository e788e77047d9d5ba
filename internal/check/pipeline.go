package check

import (
	"errors"
	"strings"

	"github.com/wesleyorama2/swarm/internal/session"
)

// Check is one extraction and validation rule attached to a request.
type Check struct {
	// Name labels failures; empty means the extractor's name.
	Name      string
	Extractor Extractor
	Transform Transform
	// Validator defaults to Exists.
	Validator Validator
	// SaveAs stores the extracted value in the session when the check passes.
	SaveAs string
	// Optional lets a missing value pass without saving anything.
	Optional bool
}

// Label returns the name used in failure reasons.
func (c Check) Label() string {
	if c.Name != "" {
		return c.Name
	}
	if c.Extractor != nil {
		return c.Extractor.Name()
	}
	return "check"
}

// Failure is one failed check.
type Failure struct {
	Check  string
	Reason Reason
	Detail string
}

// Error returns the short form, e.g. "value mismatch on $.id".
func (f Failure) Error() string {
	return string(f.Reason) + " on " + f.Check
}

// Message returns the short form followed by the detail, if any.
func (f Failure) Message() string {
	if f.Detail == "" {
		return f.Error()
	}
	return f.Error() + " (" + f.Detail + ")"
}

// Result is the outcome of a pipeline run.
type Result struct {
	Passed   bool
	Failures []Failure
	// Saved lists the session keys written, in check order.
	Saved []string
}

// Reason joins the short form of every failure, or returns "" when the run
// passed.
func (r Result) Reason() string {
	return r.join(Failure.Error)
}

// Details is Reason with each failure's detail included.
func (r Result) Details() string {
	return r.join(Failure.Message)
}

func (r Result) join(format func(Failure) string) string {
	parts := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		parts[i] = format(f)
	}
	return strings.Join(parts, "; ")
}

// Run evaluates every check in order against resp. A failing check does not
// stop later checks. Passing checks with SaveAs write into s as they go, so
// a later check may compare against a value saved by an earlier one.
func Run(resp *Response, checks []Check, s *session.Session) Result {
	res := Result{Passed: true}
	for _, c := range checks {
		if f, ok := evaluate(resp, c, s, &res); !ok {
			res.Passed = false
			res.Failures = append(res.Failures, f)
		}
	}
	return res
}

func evaluate(resp *Response, c Check, s *session.Session, res *Result) (Failure, bool) {
	label := c.Label()
	if c.Extractor == nil {
		return Failure{Check: label, Reason: ReasonNotApplicable, Detail: "no extractor"}, false
	}

	x, err := c.Extractor.Extract(resp)
	if err != nil {
		reason := ReasonMissing
		if errors.Is(err, ErrInvalidJSON) {
			reason = ReasonInvalidBody
		}
		return Failure{Check: label, Reason: reason, Detail: err.Error()}, false
	}
	if !x.Found {
		if c.Optional {
			return Failure{}, true
		}
		return Failure{Check: label, Reason: ReasonMissing}, false
	}

	if c.Transform != nil && x.Shape != ShapeNull {
		v, err := c.Transform(x.Value)
		if err != nil {
			return Failure{Check: label, Reason: ReasonTransform, Detail: err.Error()}, false
		}
		x = Extraction{Found: true, Shape: ShapeScalar, Value: v, Raw: v.Bytes()}
	}

	validator := c.Validator
	if validator == nil {
		validator = Exists()
	}
	if err := validator.Validate(x, s); err != nil {
		f := Failure{Check: label, Reason: ReasonMismatch, Detail: err.Error()}
		var verr *ValidationError
		if errors.As(err, &verr) {
			f.Reason = verr.Reason
			f.Detail = verr.Detail
		}
		return f, false
	}

	if c.SaveAs != "" {
		if x.Value.IsValid() {
			s.Set(c.SaveAs, x.Value)
		} else {
			// null clears the key so later templates see it as missing
			s.Delete(c.SaveAs)
		}
		res.Saved = append(res.Saved, c.SaveAs)
	}
	return Failure{}, true
}
