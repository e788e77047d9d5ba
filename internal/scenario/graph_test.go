package scenario

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/swarm/internal/check"
)

func get(path string) *Request {
	return &Request{Method: "GET", Path: MustTemplate(path)}
}

func TestNewGraph_Valid(t *testing.T) {
	crud := Seq(
		get("/data/{{kind}}"),
		Fixed(time.Second),
		&Assign{Key: "value", Value: RandomInt{Min: 0, Max: 99}},
	)
	root := Seq(
		&Request{Name: "Auth", Method: "post", Path: Text("/auth"),
			Checks: []check.Check{{Extractor: check.JSONPath("$.access_token"), SaveAs: "accessToken"}}},
		&Exec{Chain: "crud", With: []Binding{{Key: "kind", Value: Text("users")}}},
		&Exec{Chain: "crud", With: []Binding{{Key: "kind", Value: Text("posts")}}},
		&Repeat{Times: 2, Counter: "i", Body: get("/sample")},
	)

	g, err := NewGraph("api", root, map[string]*Sequence{"crud": crud})
	require.NoError(t, err)
	assert.Equal(t, "api", g.Name())
	assert.Equal(t, root, g.Root())
	c, ok := g.Chain("crud")
	require.True(t, ok)
	assert.Equal(t, crud, c)
	assert.Equal(t, []string{"crud"}, g.ChainNames())
}

func TestNewGraph_CopiesNodes(t *testing.T) {
	auth := &Request{Name: "Auth", Method: "POST", Path: Text("/auth"),
		Headers: []Header{{Name: "Accept", Value: Text("application/json")}}}
	exec := &Exec{Chain: "crud", With: []Binding{{Key: "kind", Value: Text("users")}}}
	loop := &Repeat{Times: 2, Body: Seq(get("/sample"))}
	crud := Seq(get("/data/{{kind}}"))
	root := Seq(auth, exec, loop)

	g, err := NewGraph("api", root, map[string]*Sequence{"crud": crud})
	require.NoError(t, err)

	root.Nodes = root.Nodes[:1]
	auth.Method = "DELETE"
	auth.Headers[0].Name = "X-Changed"
	exec.With[0].Key = "changed"
	loop.Body.(*Sequence).Nodes = nil
	crud.Nodes = append(crud.Nodes, &Exec{Chain: "crud"})

	nodes := g.Root().Nodes
	require.Len(t, nodes, 3)
	req := nodes[0].(*Request)
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "Accept", req.Headers[0].Name)
	assert.Equal(t, "kind", nodes[1].(*Exec).With[0].Key)
	assert.Len(t, nodes[2].(*Repeat).Body.(*Sequence).Nodes, 1)

	chain, ok := g.Chain("crud")
	require.True(t, ok)
	assert.Len(t, chain.Nodes, 1)
}

func TestNewGraph_UnknownChain(t *testing.T) {
	_, err := NewGraph("api", Seq(&Exec{Chain: "nope"}), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidGraph))
	assert.Contains(t, err.Error(), `unknown chain "nope"`)
	assert.Contains(t, err.Error(), "root[0]")
}

func TestNewGraph_Cycle(t *testing.T) {
	chains := map[string]*Sequence{
		"a": Seq(get("/a"), &Exec{Chain: "b"}),
		"b": Seq(&Repeat{Times: 1, Body: &Exec{Chain: "a"}}),
	}
	_, err := NewGraph("loop", Seq(&Exec{Chain: "a"}), chains)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidGraph)
	assert.Contains(t, err.Error(), "a -> b -> a")
}

func TestNewGraph_SelfReference(t *testing.T) {
	chains := map[string]*Sequence{"self": Seq(&Exec{Chain: "self"})}
	_, err := NewGraph("loop", Seq(get("/")), chains)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "self -> self")
}

func TestNewGraph_NodeProblems(t *testing.T) {
	tests := []struct {
		name string
		node Node
		want string
	}{
		{"bad method", &Request{Method: "FETCH", Path: Text("/")}, "invalid HTTP method"},
		{"no path", &Request{Method: "GET"}, "path is required"},
		{"negative pause", Fixed(-time.Second), "pause cannot be negative"},
		{"negative repeat", &Repeat{Times: -1, Body: get("/")}, "repeat count cannot be negative"},
		{"empty assign", &Assign{Key: ""}, "assign needs a key"},
		{"nil node", nil, "nil node"},
		{"check without extractor", &Request{Method: "GET", Path: Text("/"), Checks: []check.Check{{}}}, "no extractor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGraph("s", Seq(tt.node), nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidGraph)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewGraph_EmptyScenario(t *testing.T) {
	_, err := NewGraph("", Seq(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
	assert.Contains(t, err.Error(), "no actions")
}

func TestRequest_Label(t *testing.T) {
	assert.Equal(t, "Get me", (&Request{Name: "Get me", Method: "GET", Path: Text("/me")}).Label())
	assert.Equal(t, "GET /data/{{kind}}", get("/data/{{kind}}").Label())
}
