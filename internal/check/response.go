// Package check evaluates response assertions and feeds extracted values
// back into the session.
package check

import (
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// Response is the descriptor a check pipeline runs against. Body must not
// change once checks have run against it.
type Response struct {
	Status   int
	Header   http.Header
	Body     []byte
	Duration time.Duration

	json jsonState
}

type jsonState uint8

const (
	jsonUnchecked jsonState = iota
	jsonValid
	jsonInvalid
)

// ValidJSON reports whether the body parses as JSON. The result is computed
// once per response and shared by every JSON path check.
func (r *Response) ValidJSON() bool {
	if r.json == jsonUnchecked {
		r.json = jsonInvalid
		if gjson.ValidBytes(r.Body) {
			r.json = jsonValid
		}
	}
	return r.json == jsonValid
}
