package report

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Assertion is a run-level threshold such as "p95 < 500ms" or
// "Get me: failed.percent < 1".
type Assertion struct {
	Raw string
	// Action scopes the assertion to one action; empty means all requests.
	Action    string
	Metric    string
	Op        string
	Threshold float64
	duration  bool
}

var assertionRe = regexp.MustCompile(`^(?:(.+?):\s+)?([a-z0-9_.]+)\s*(<=|>=|==|!=|<|>|=)\s*(\S+)$`)

var durationMetrics = map[string]bool{
	"min": true, "max": true, "mean": true,
	"p50": true, "p90": true, "p95": true, "p99": true,
}

var numericMetrics = map[string]bool{
	"count": true, "rate": true, "failed.count": true, "failed.percent": true,
	"users": true,
}

// ParseAssertion parses "[action: ]metric op value". Duration metrics take a
// Go duration or plain milliseconds.
func ParseAssertion(raw string) (*Assertion, error) {
	m := assertionRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return nil, fmt.Errorf("invalid assertion %q: expected \"metric op value\"", raw)
	}
	a := &Assertion{Raw: raw, Action: strings.TrimSpace(m[1]), Metric: m[2], Op: m[3]}

	switch {
	case durationMetrics[a.Metric]:
		a.duration = true
		d, err := time.ParseDuration(m[4])
		if err != nil {
			ms, ferr := strconv.ParseFloat(m[4], 64)
			if ferr != nil {
				return nil, fmt.Errorf("invalid assertion %q: %q is not a duration", raw, m[4])
			}
			d = time.Duration(ms * float64(time.Millisecond))
		}
		a.Threshold = float64(d)
	case numericMetrics[a.Metric]:
		if a.Metric == "users" && a.Action != "" {
			return nil, fmt.Errorf("invalid assertion %q: users cannot be scoped to an action", raw)
		}
		v, err := strconv.ParseFloat(m[4], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid assertion %q: %q is not a number", raw, m[4])
		}
		a.Threshold = v
	default:
		return nil, fmt.Errorf("invalid assertion %q: unknown metric %q", raw, a.Metric)
	}
	return a, nil
}

// Evaluate checks the assertion against a snapshot.
func (a *Assertion) Evaluate(s *Snapshot) AssertionResult {
	res := AssertionResult{Expression: a.Raw}

	var count, failed int64
	var latency LatencyStats
	if a.Action == "" {
		count, failed, latency = s.Requests, s.Failed, s.Latency
	} else {
		st, ok := s.Action(a.Action)
		if !ok {
			res.Actual = "no requests for " + strconv.Quote(a.Action)
			return res
		}
		count, failed, latency = st.Count, st.Failed, st.Latency
	}

	var actual float64
	switch a.Metric {
	case "count":
		actual = float64(count)
	case "rate":
		if s.Elapsed > 0 {
			actual = float64(count) / s.Elapsed.Seconds()
		}
	case "failed.count":
		actual = float64(failed)
	case "failed.percent":
		if count > 0 {
			actual = float64(failed) / float64(count) * 100
		}
	case "users":
		actual = float64(s.Started)
	case "min":
		actual = float64(latency.Min)
	case "max":
		actual = float64(latency.Max)
	case "mean":
		actual = float64(latency.Mean)
	case "p50":
		actual = float64(latency.P50)
	case "p90":
		actual = float64(latency.P90)
	case "p95":
		actual = float64(latency.P95)
	case "p99":
		actual = float64(latency.P99)
	}

	if a.duration {
		res.Actual = time.Duration(actual).String()
	} else if actual == float64(int64(actual)) {
		res.Actual = strconv.FormatInt(int64(actual), 10)
	} else {
		res.Actual = strconv.FormatFloat(actual, 'f', 2, 64)
	}
	res.Passed = compare(actual, a.Op, a.Threshold)
	return res
}

// EvaluateAll evaluates every assertion in order.
func EvaluateAll(assertions []*Assertion, s *Snapshot) []AssertionResult {
	out := make([]AssertionResult, 0, len(assertions))
	for _, a := range assertions {
		out = append(out, a.Evaluate(s))
	}
	return out
}

func compare(actual float64, op string, threshold float64) bool {
	switch op {
	case "<":
		return actual < threshold
	case "<=":
		return actual <= threshold
	case ">":
		return actual > threshold
	case ">=":
		return actual >= threshold
	case "==", "=":
		return actual == threshold
	case "!=":
		return actual != threshold
	}
	return false
}
