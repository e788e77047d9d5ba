package check

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/wesleyorama2/swarm/internal/session"
)

// ErrInvalidJSON is returned by JSON extractors when the body is not JSON.
var ErrInvalidJSON = errors.New("response body is not valid JSON")

// Shape describes the structure of an extracted value.
type Shape int

const (
	ShapeMissing Shape = iota
	ShapeNull
	ShapeScalar
	ShapeList
	ShapeObject
)

func (s Shape) String() string {
	switch s {
	case ShapeNull:
		return "null"
	case ShapeScalar:
		return "scalar"
	case ShapeList:
		return "list"
	case ShapeObject:
		return "object"
	default:
		return "missing"
	}
}

// Extraction is the result of applying an extractor to a response.
//
// A JSON null is found but carries no Value. Lists and objects carry their
// raw JSON as a bytes Value.
type Extraction struct {
	Found bool
	Shape Shape
	Value session.Value
	Raw   []byte
}

// Extractor pulls one value out of a response.
type Extractor interface {
	// Name is used to label failures, e.g. "status" or "$.id".
	Name() string
	Extract(resp *Response) (Extraction, error)
}

type statusExtractor struct{}

// Status extracts the response status code as a number.
func Status() Extractor { return statusExtractor{} }

func (statusExtractor) Name() string { return "status" }

func (statusExtractor) Extract(resp *Response) (Extraction, error) {
	return Extraction{
		Found: true,
		Shape: ShapeScalar,
		Value: session.Int(int64(resp.Status)),
		Raw:   []byte(strconv.Itoa(resp.Status)),
	}, nil
}

type headerExtractor struct{ name string }

// Header extracts the first value of a response header.
func Header(name string) Extractor { return headerExtractor{name: name} }

func (h headerExtractor) Name() string { return "header " + h.name }

func (h headerExtractor) Extract(resp *Response) (Extraction, error) {
	values := resp.Header.Values(h.name)
	if len(values) == 0 {
		return Extraction{}, nil
	}
	return Extraction{
		Found: true,
		Shape: ShapeScalar,
		Value: session.String(values[0]),
		Raw:   []byte(values[0]),
	}, nil
}

type jsonPathExtractor struct {
	path  string
	gpath string
}

// JSONPath extracts a value from a JSON body. Paths use the $.a.b[0] form.
func JSONPath(path string) Extractor {
	return jsonPathExtractor{path: path, gpath: toGjsonPath(path)}
}

func (j jsonPathExtractor) Name() string { return j.path }

func (j jsonPathExtractor) Extract(resp *Response) (Extraction, error) {
	if !resp.ValidJSON() {
		return Extraction{}, fmt.Errorf("%s: %w", j.path, ErrInvalidJSON)
	}
	return fromResult(gjson.GetBytes(resp.Body, j.gpath)), nil
}

func fromResult(r gjson.Result) Extraction {
	if !r.Exists() {
		return Extraction{}
	}
	x := Extraction{Found: true, Raw: []byte(r.Raw)}
	switch r.Type {
	case gjson.Null:
		x.Shape = ShapeNull
	case gjson.String:
		x.Shape = ShapeScalar
		x.Value = session.String(r.Str)
	case gjson.Number:
		x.Shape = ShapeScalar
		x.Value = session.Number(r.Num)
	case gjson.True, gjson.False:
		x.Shape = ShapeScalar
		x.Value = session.Bool(r.Bool())
	case gjson.JSON:
		if r.IsArray() {
			x.Shape = ShapeList
		} else {
			x.Shape = ShapeObject
		}
		x.Value = session.Bytes([]byte(r.Raw))
	}
	return x
}

type bodyExtractor struct{ asString bool }

// BodyBytes extracts the raw body.
func BodyBytes() Extractor { return bodyExtractor{} }

// BodyString extracts the body as a string.
func BodyString() Extractor { return bodyExtractor{asString: true} }

func (b bodyExtractor) Name() string {
	if b.asString {
		return "bodyString"
	}
	return "bodyBytes"
}

func (b bodyExtractor) Extract(resp *Response) (Extraction, error) {
	x := Extraction{Found: true, Shape: ShapeScalar, Raw: resp.Body}
	if b.asString {
		x.Value = session.String(string(resp.Body))
	} else {
		x.Value = session.Bytes(resp.Body)
	}
	return x, nil
}
