package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wesleyorama2/swarm/internal/check"
	"github.com/wesleyorama2/swarm/internal/injection"
	"github.com/wesleyorama2/swarm/internal/protocol"
	"github.com/wesleyorama2/swarm/internal/report"
	"github.com/wesleyorama2/swarm/internal/runner"
	"github.com/wesleyorama2/swarm/internal/scenario"
	"github.com/wesleyorama2/swarm/internal/session"
	"github.com/wesleyorama2/swarm/internal/transport"
)

// Compiled is a simulation ready to run.
type Compiled struct {
	Name               string
	Seed               uint64
	Protocol           *protocol.Config
	Transport          transport.Config
	Graph              *scenario.Graph
	Profile            *injection.Profile
	Policy             runner.Policy
	MaxConcurrentUsers int64
	Assertions         []*report.Assertion
}

// Load reads and compiles a simulation file.
func Load(path string) (*Compiled, error) {
	sim, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return sim.Compile()
}

// Compile validates the simulation and builds its executable form. It
// returns *ValidationErrors listing every problem; errors.Is matches
// scenario.ErrInvalidGraph and injection.ErrInvalidStep through it.
func (s *Simulation) Compile() (*Compiled, error) {
	errs := &ValidationErrors{}
	c := &Compiled{Name: s.Name, Seed: s.Seed, MaxConcurrentUsers: s.MaxConcurrentUsers}

	if s.Name == "" {
		errs.Add("name", "name is required")
	}
	if s.MaxConcurrentUsers < 0 {
		errs.Add("maxConcurrentUsers", "maxConcurrentUsers cannot be negative")
	}

	policy, err := runner.ParsePolicy(s.Policy)
	if err != nil {
		errs.AddErr("policy", err)
	}
	c.Policy = policy

	c.Protocol, c.Transport = compileProtocol(&s.Protocol, errs)

	chains := make(map[string]*scenario.Sequence, len(s.Chains))
	for _, name := range sortedKeys(s.Chains) {
		chains[name] = &scenario.Sequence{Name: name, Nodes: compileSteps("chains."+name, s.Chains[name], errs)}
	}
	graphName := s.Scenario.Name
	if graphName == "" {
		graphName = s.Name
	}
	root := &scenario.Sequence{Name: graphName, Nodes: compileSteps("scenario.steps", s.Scenario.Steps, errs)}
	if g, err := scenario.NewGraph(graphName, root, chains); err != nil {
		for _, e := range split(err) {
			field := "scenario"
			var ge *scenario.GraphError
			if errors.As(e, &ge) && ge.Path != "" {
				field = strings.Replace(ge.Path, "root", "scenario.steps", 1)
			}
			errs.AddErr(field, e)
		}
	} else {
		c.Graph = g
	}

	c.Profile = compileInjection(s.Injection, errs)

	for i, raw := range s.Assertions {
		a, err := report.ParseAssertion(raw)
		if err != nil {
			errs.AddErr(fmt.Sprintf("assertions[%d]", i), err)
			continue
		}
		c.Assertions = append(c.Assertions, a)
	}

	if errs.HasErrors() {
		return nil, errs
	}
	return c, nil
}

func compileProtocol(p *ProtocolConfig, errs *ValidationErrors) (*protocol.Config, transport.Config) {
	tc := transport.DefaultConfig()
	tc.MaxConnsPerHost = p.MaxConnsPerHost
	tc.InsecureSkipVerify = p.InsecureSkipVerify
	if p.MaxConnsPerHost < 0 {
		errs.Add("protocol.maxConnsPerHost", "maxConnsPerHost cannot be negative")
	}
	if p.Timeout != "" {
		d, err := ParseDurationString(string(p.Timeout))
		if err != nil || d <= 0 {
			errs.Add("protocol.timeout", fmt.Sprintf("invalid timeout: %s", p.Timeout))
		} else {
			tc.Timeout = d
		}
	}

	if p.BaseURL == "" {
		errs.Add("protocol.baseUrl", "baseUrl is required")
		return nil, tc
	}
	var opts []protocol.Option
	for _, name := range sortedKeys(p.Headers) {
		opts = append(opts, protocol.WithHeader(name, p.Headers[name]))
	}
	if p.UserAgent != "" {
		opts = append(opts, protocol.WithUserAgent(p.UserAgent))
	}
	cfg, err := protocol.New(p.BaseURL, opts...)
	if err != nil {
		errs.AddErr("protocol.baseUrl", err)
		return nil, tc
	}
	return cfg, tc
}

func compileSteps(prefix string, steps []StepConfig, errs *ValidationErrors) []scenario.Node {
	nodes := make([]scenario.Node, 0, len(steps))
	for i := range steps {
		n := compileStep(fmt.Sprintf("%s[%d]", prefix, i), &steps[i], errs)
		if n == nil {
			// keep indexes aligned so graph errors name the right step
			n = &scenario.Sequence{}
		}
		nodes = append(nodes, n)
	}
	return nodes
}

func compileStep(field string, st *StepConfig, errs *ValidationErrors) scenario.Node {
	kinds := 0
	for _, set := range []bool{st.Request != nil, st.Pause != nil, st.Exec != nil, st.Repeat != nil, st.Assign != nil} {
		if set {
			kinds++
		}
	}
	if kinds != 1 {
		errs.Add(field, "step must set exactly one of request, pause, exec, repeat, assign")
		return nil
	}

	switch {
	case st.Request != nil:
		return compileRequest(field+".request", st.Request, errs)
	case st.Pause != nil:
		return compilePause(field+".pause", st.Pause, errs)
	case st.Exec != nil:
		ex := &scenario.Exec{Chain: st.Exec.Chain}
		if ex.Chain == "" {
			errs.Add(field+".exec.chain", "chain is required")
		}
		for _, key := range sortedKeys(st.Exec.With) {
			ex.With = append(ex.With, scenario.Binding{Key: key, Value: template(field+".exec.with."+key, st.Exec.With[key], errs)})
		}
		return ex
	case st.Repeat != nil:
		if st.Repeat.Times < 0 {
			errs.Add(field+".repeat.times", "times cannot be negative")
		}
		return &scenario.Repeat{
			Times:   st.Repeat.Times,
			Counter: st.Repeat.Counter,
			Body:    scenario.Seq(compileSteps(field+".repeat.steps", st.Repeat.Steps, errs)...),
		}
	default:
		a := st.Assign
		if a.Key == "" {
			errs.Add(field+".assign.key", "key is required")
		}
		switch {
		case a.Random != nil && a.Value != "":
			errs.Add(field+".assign", "set either value or random, not both")
		case a.Random != nil:
			if a.Random.Max < a.Random.Min {
				errs.Add(field+".assign.random", "max must not be less than min")
			}
			return &scenario.Assign{Key: a.Key, Value: scenario.RandomInt{Min: a.Random.Min, Max: a.Random.Max}}
		}
		return &scenario.Assign{Key: a.Key, Value: template(field+".assign.value", a.Value, errs)}
	}
}

func compilePause(field string, p *PauseConfig, errs *ValidationErrors) scenario.Node {
	parse := func(name string, d Duration) time.Duration {
		v, err := ParseDurationString(string(d))
		if err != nil {
			errs.Add(field+name, err.Error())
		} else if v < 0 {
			errs.Add(field+name, "pause cannot be negative")
		}
		return v
	}
	if p.Duration != "" {
		if p.Min != "" || p.Max != "" {
			errs.Add(field, "set either a duration or min/max")
		}
		return scenario.Fixed(parse("", p.Duration))
	}
	min, max := parse(".min", p.Min), parse(".max", p.Max)
	if max < min {
		errs.Add(field+".max", "max must not be less than min")
	}
	return scenario.Between(min, max)
}

func compileRequest(field string, rc *RequestConfig, errs *ValidationErrors) scenario.Node {
	method := strings.ToUpper(rc.Method)
	if method == "" {
		method = "GET"
	}
	r := &scenario.Request{Name: rc.Name, Method: method}

	// an empty path is reported by the graph validation
	if rc.Path != "" {
		r.Path = template(field+".path", rc.Path, errs)
	}
	for _, name := range sortedKeys(rc.Headers) {
		r.Headers = append(r.Headers, scenario.Header{Name: name, Value: template(field+".headers."+name, rc.Headers[name], errs)})
	}
	for _, name := range sortedKeys(rc.Query) {
		r.Query = append(r.Query, scenario.Param{Name: name, Value: template(field+".query."+name, rc.Query[name], errs)})
	}

	switch {
	case rc.Body != "" && len(rc.JSON) > 0:
		errs.Add(field, "set either body or json, not both")
	case rc.Body != "":
		r.Body = template(field+".body", rc.Body, errs)
	case len(rc.JSON) > 0:
		obj := scenario.JSON{}
		for _, k := range sortedKeys(rc.JSON) {
			obj[k] = template(field+".json."+k, rc.JSON[k], errs)
		}
		r.Body = obj
	}

	if rc.Timeout != "" {
		d, err := ParseDurationString(string(rc.Timeout))
		if err != nil || d < 0 {
			errs.Add(field+".timeout", fmt.Sprintf("invalid timeout: %s", rc.Timeout))
		}
		r.Timeout = d
	}

	for i := range rc.Checks {
		if c, ok := compileCheck(fmt.Sprintf("%s.checks[%d]", field, i), &rc.Checks[i], errs); ok {
			r.Checks = append(r.Checks, c)
		}
	}
	return r
}

func compileCheck(field string, cc *CheckConfig, errs *ValidationErrors) (check.Check, bool) {
	c := check.Check{Name: cc.Name, SaveAs: cc.SaveAs, Optional: cc.Optional}
	ok := true

	var validators []check.Validator
	extractors := 0
	if cc.Status != nil {
		extractors++
		c.Extractor = check.Status()
		validators = append(validators, check.Is(session.Int(int64(*cc.Status))))
	}
	if cc.Header != "" {
		extractors++
		c.Extractor = check.Header(cc.Header)
	}
	if cc.JSONPath != "" {
		extractors++
		c.Extractor = check.JSONPath(cc.JSONPath)
	}
	if cc.BodyBytes {
		extractors++
		c.Extractor = check.BodyBytes()
	}
	if cc.BodyString {
		extractors++
		c.Extractor = check.BodyString()
	}
	if extractors != 1 {
		errs.Add(field, "check must set exactly one of status, header, jsonPath, bodyBytes, bodyString")
		ok = false
	}

	if cc.Transform != "" {
		t, found := check.NamedTransforms[cc.Transform]
		if !found {
			errs.Add(field+".transform", fmt.Sprintf("unknown transform: %s", cc.Transform))
			ok = false
		}
		c.Transform = t
	}

	if cc.Is != nil {
		v, err := toValue(cc.Is)
		if err != nil {
			errs.AddErr(field+".is", err)
			ok = false
		}
		validators = append(validators, check.Is(v))
	}
	if cc.IsSession != "" {
		validators = append(validators, check.IsSession(cc.IsSession))
	}
	if len(cc.In) > 0 {
		values := make([]session.Value, 0, len(cc.In))
		for j, raw := range cc.In {
			v, err := toValue(raw)
			if err != nil {
				errs.AddErr(fmt.Sprintf("%s.in[%d]", field, j), err)
				ok = false
			}
			values = append(values, v)
		}
		validators = append(validators, check.In(values...))
	}
	if cc.NotNull {
		validators = append(validators, check.NotNull())
	}
	if cc.OfList {
		validators = append(validators, check.OfList())
	}
	if cc.OfObject {
		validators = append(validators, check.OfObject())
	}
	if cc.Schema != "" {
		v, err := check.MatchesSchema(cc.Schema)
		if err != nil {
			errs.AddErr(field+".schema", err)
			ok = false
		}
		validators = append(validators, v)
	}

	switch len(validators) {
	case 0:
	case 1:
		c.Validator = validators[0]
	default:
		c.Validator = check.All(validators...)
	}
	return c, ok
}

func compileInjection(steps []InjectionConfig, errs *ValidationErrors) *injection.Profile {
	if len(steps) == 0 {
		errs.Add("injection", "at least one injection step is required")
		return nil
	}

	compiled := make([]injection.Step, 0, len(steps))
	valid := true
	for i, ic := range steps {
		field := fmt.Sprintf("injection[%d]", i)
		during, err := ParseDurationString(string(ic.During))
		if err != nil {
			errs.Add(field+".during", err.Error())
			valid = false
		}

		kinds := 0
		var step injection.Step
		if ic.AtOnce != nil {
			kinds++
			step = injection.AtOnce{Count: *ic.AtOnce}
		}
		if ic.RampUsers != nil {
			kinds++
			step = injection.RampUsers{Count: *ic.RampUsers, During: during}
		}
		if ic.NothingFor != nil {
			kinds++
			d, err := ParseDurationString(string(*ic.NothingFor))
			if err != nil {
				errs.Add(field+".nothingFor", err.Error())
				valid = false
			}
			step = injection.NothingFor{During: d}
		}
		if ic.ConstantRate != nil {
			kinds++
			step = injection.ConstantRate{Rate: *ic.ConstantRate, During: during}
		}
		if kinds != 1 {
			errs.Add(field, "step must set exactly one of atOnce, rampUsers, nothingFor, constantRate")
			valid = false
			continue
		}
		compiled = append(compiled, step)
	}
	if !valid {
		return nil
	}

	p, err := injection.NewProfile(compiled...)
	if err != nil {
		for _, e := range split(err) {
			field := "injection"
			var se *injection.StepError
			if errors.As(e, &se) {
				field = fmt.Sprintf("injection[%d]", se.Index)
			}
			errs.AddErr(field, e)
		}
		return nil
	}
	return p
}

func template(field, raw string, errs *ValidationErrors) scenario.Expr {
	t, err := scenario.ParseTemplate(raw)
	if err != nil {
		errs.AddErr(field, err)
		return scenario.Text(raw)
	}
	return t
}

func toValue(v any) (session.Value, error) {
	switch v := v.(type) {
	case string:
		return session.String(v), nil
	case bool:
		return session.Bool(v), nil
	case int:
		return session.Int(int64(v)), nil
	case int64:
		return session.Int(v), nil
	case uint64:
		return session.Number(float64(v)), nil
	case float64:
		return session.Number(v), nil
	}
	return session.Value{}, fmt.Errorf("unsupported value %v (%T)", v, v)
}

func split(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
