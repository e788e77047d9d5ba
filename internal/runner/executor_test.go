package runner

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/swarm/internal/check"
	"github.com/wesleyorama2/swarm/internal/protocol"
	"github.com/wesleyorama2/swarm/internal/report"
	"github.com/wesleyorama2/swarm/internal/scenario"
	"github.com/wesleyorama2/swarm/internal/session"
	"github.com/wesleyorama2/swarm/internal/transport"
)

type apiServer struct {
	*httptest.Server
	mu    sync.Mutex
	paths []string
	meHit atomic.Int32
}

func newAPIServer(t *testing.T) *apiServer {
	a := &apiServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"tok-1"}`)
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		a.meHit.Add(1)
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"detail":"Not authenticated"}`)
			return
		}
		fmt.Fprint(w, `{"id_user":"ABCDEFGH"}`)
	})
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"ABCDEFGH","data":{"users":[1,2]}}`)
	})
	mux.HandleFunc("/data/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"id":"ABCDEFGH","data":[%q]}`, r.URL.Path)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	a.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		a.paths = append(a.paths, r.Method+" "+r.URL.RequestURI())
		a.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(a.Close)
	return a
}

func (a *apiServer) seen() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.paths...)
}

func newExecutor(t *testing.T, srv *apiServer, root *scenario.Sequence, chains map[string]*scenario.Sequence) (*Executor, *report.Collector) {
	t.Helper()
	g, err := scenario.NewGraph("test", root, chains)
	require.NoError(t, err)
	proto, err := protocol.New(srv.URL, protocol.WithAcceptHeader("application/json"))
	require.NoError(t, err)
	col := report.NewCollector()
	client := transport.New(transport.DefaultConfig())
	t.Cleanup(client.Close)
	return &Executor{Graph: g, Protocol: proto, Transport: client, Sink: col}, col
}

func status(code int) check.Check {
	return check.Check{Extractor: check.Status(), Validator: check.Is(session.Int(int64(code)))}
}

func authRequest() *scenario.Request {
	return &scenario.Request{
		Name: "Get Access Token", Method: "POST", Path: scenario.Text("/auth"),
		Checks: []check.Check{status(200), {Extractor: check.JSONPath("$.access_token"), SaveAs: "accessToken"}},
	}
}

func meRequest() *scenario.Request {
	return &scenario.Request{
		Name: "Get me", Method: "GET", Path: scenario.Text("/me"),
		Headers: []scenario.Header{{Name: "Authorization", Value: scenario.MustTemplate("Bearer {{accessToken}}")}},
		Checks:  []check.Check{status(200), {Extractor: check.JSONPath("$.id_user"), SaveAs: "userId"}},
	}
}

func TestRun_OrderAndSaveAsPropagation(t *testing.T) {
	srv := newAPIServer(t)
	data := &scenario.Request{
		Name: "Get data", Method: "GET", Path: scenario.Text("/data"),
		Checks: []check.Check{
			status(200),
			{Extractor: check.JSONPath("$.id"), Validator: check.IsSession("userId")},
			{Extractor: check.JSONPath("$.data"), Validator: check.NotNull()},
			{Extractor: check.JSONPath("$.data.users"), Validator: check.OfList()},
		},
	}
	exec, col := newExecutor(t, srv, scenario.Seq(authRequest(), meRequest(), data), nil)

	u := NewVirtualUser(1, 0, 42)
	out := exec.Run(context.Background(), u)

	assert.Equal(t, 3, out.Actions)
	assert.Zero(t, out.Failures)
	assert.False(t, out.Stopped)
	assert.Equal(t, []string{"POST /auth", "GET /me", "GET /data"}, srv.seen())

	recs := col.Requests(1)
	require.Len(t, recs, 3)
	for i, name := range []string{"Get Access Token", "Get me", "Get data"} {
		assert.Equal(t, name, recs[i].Action)
		assert.Equal(t, report.OutcomePass, recs[i].Outcome, recs[i].FailureReason)
		if i > 0 {
			assert.False(t, recs[i].Start.Before(recs[i-1].Start))
		}
	}
	v, ok := u.Session.Get("userId")
	require.True(t, ok)
	assert.Equal(t, "ABCDEFGH", v.String())
	assert.Equal(t, "Get data", u.Position())

	all := col.Records()
	assert.Equal(t, report.KindUserStart, all[0].Kind)
	assert.Equal(t, report.KindUserEnd, all[len(all)-1].Kind)
}

func TestRun_FailedCheckAdvancesToNextStep(t *testing.T) {
	srv := newAPIServer(t)
	mismatch := &scenario.Request{
		Name: "Get data", Method: "GET", Path: scenario.Text("/data"),
		Checks: []check.Check{status(200), {Extractor: check.JSONPath("$.id"), Validator: check.Is(session.String("someone-else"))}},
	}
	exec, col := newExecutor(t, srv, scenario.Seq(mismatch, authRequest()), nil)

	out := exec.Run(context.Background(), NewVirtualUser(1, 0, 0))

	assert.Equal(t, 2, out.Actions)
	assert.Equal(t, 1, out.Failures)
	recs := col.Requests(1)
	require.Len(t, recs, 2)
	assert.Equal(t, report.OutcomeFail, recs[0].Outcome)
	assert.Equal(t, "value mismatch on $.id", recs[0].FailureReason)
	assert.Equal(t, 200, recs[0].Status)
	assert.Equal(t, report.OutcomePass, recs[1].Outcome)

	all := col.Records()
	assert.Equal(t, report.OutcomeFail, all[len(all)-1].Outcome)
}

func TestRun_MissingTokenFailsWithoutSending(t *testing.T) {
	srv := newAPIServer(t)
	exec, col := newExecutor(t, srv, scenario.Seq(meRequest()), nil)

	out := exec.Run(context.Background(), NewVirtualUser(1, 0, 0))

	assert.Equal(t, 1, out.Failures)
	assert.Zero(t, srv.meHit.Load())
	recs := col.Requests(1)
	require.Len(t, recs, 1)
	assert.Contains(t, recs[0].FailureReason, `missing session key "accessToken"`)
	assert.Zero(t, recs[0].Status)
}

func TestRun_TimeoutDoesNotCancelRemainingSteps(t *testing.T) {
	srv := newAPIServer(t)
	slow := &scenario.Request{Name: "Slow", Method: "GET", Path: scenario.Text("/slow"), Timeout: 50 * time.Millisecond}
	exec, col := newExecutor(t, srv, scenario.Seq(slow, authRequest()), nil)

	out := exec.Run(context.Background(), NewVirtualUser(1, 0, 0))

	assert.Equal(t, 2, out.Actions)
	assert.Equal(t, 1, out.Failures)
	recs := col.Requests(1)
	require.Len(t, recs, 2)
	assert.Contains(t, recs[0].FailureReason, "timed out")
	assert.Equal(t, report.OutcomePass, recs[1].Outcome)
}

func TestRun_StopOnFailure(t *testing.T) {
	srv := newAPIServer(t)
	exec, col := newExecutor(t, srv, scenario.Seq(meRequest(), authRequest()), nil)
	exec.Policy = StopOnFailure

	out := exec.Run(context.Background(), NewVirtualUser(1, 0, 0))

	assert.True(t, out.Stopped)
	assert.Equal(t, 1, out.Actions)
	assert.Len(t, col.Requests(1), 1)
	assert.Empty(t, srv.seen())
}

func TestRun_ExecBindingsRepeatAndAssign(t *testing.T) {
	srv := newAPIServer(t)
	crud := scenario.Seq(
		&scenario.Assign{Key: "value", Value: scenario.RandomInt{Min: 0, Max: 99}},
		&scenario.Request{
			Method: "GET", Path: scenario.MustTemplate("/data/{{kind}}/{{i}}"),
			Checks: []check.Check{status(200), {Extractor: check.JSONPath("$.data"), Validator: check.OfList()}},
		},
	)
	root := scenario.Seq(
		&scenario.Exec{Chain: "crud", With: []scenario.Binding{{Key: "kind", Value: scenario.Text("users")}, {Key: "i", Value: scenario.Text("x")}}},
		&scenario.Repeat{Times: 2, Counter: "i", Body: &scenario.Exec{Chain: "crud", With: []scenario.Binding{{Key: "kind", Value: scenario.Text("posts")}}}},
	)
	exec, _ := newExecutor(t, srv, root, map[string]*scenario.Sequence{"crud": crud})

	u := NewVirtualUser(5, 0, 9)
	out := exec.Run(context.Background(), u)

	assert.Zero(t, out.Failures)
	assert.Equal(t, []string{"GET /data/users/x", "GET /data/posts/0", "GET /data/posts/1"}, srv.seen())
	_, ok := u.Session.Get("value")
	assert.True(t, ok)
}

func TestRun_TemplatedRequestName(t *testing.T) {
	srv := newAPIServer(t)
	crud := scenario.Seq(&scenario.Request{Name: "Get {{kind}} kind data", Method: "GET", Path: scenario.MustTemplate("/data/{{kind}}")})
	root := scenario.Seq(
		&scenario.Exec{Chain: "crud", With: []scenario.Binding{{Key: "kind", Value: scenario.Text("users")}}},
		&scenario.Exec{Chain: "crud", With: []scenario.Binding{{Key: "kind", Value: scenario.Text("posts")}}},
		&scenario.Request{Name: "Get {{nothing}}", Method: "GET", Path: scenario.Text("/data")},
	)
	exec, col := newExecutor(t, srv, root, map[string]*scenario.Sequence{"crud": crud})

	exec.Run(context.Background(), NewVirtualUser(1, 0, 0))

	recs := col.Requests(1)
	require.Len(t, recs, 3)
	assert.Equal(t, "Get users kind data", recs[0].Action)
	assert.Equal(t, "Get posts kind data", recs[1].Action)
	assert.Equal(t, "Get {{nothing}}", recs[2].Action)
}

func TestRun_CancelDuringPause(t *testing.T) {
	srv := newAPIServer(t)
	exec, col := newExecutor(t, srv, scenario.Seq(scenario.Fixed(time.Minute), authRequest()), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	out := exec.Run(ctx, NewVirtualUser(1, 0, 0))

	assert.True(t, out.Stopped)
	assert.Zero(t, out.Actions)
	assert.Empty(t, col.Requests(1))
}

func TestRun_RandomPauseWithinBounds(t *testing.T) {
	srv := newAPIServer(t)
	exec, _ := newExecutor(t, srv, scenario.Seq(scenario.Between(10*time.Millisecond, 30*time.Millisecond)), nil)

	out := exec.Run(context.Background(), NewVirtualUser(1, 0, 3))
	assert.GreaterOrEqual(t, out.Duration, 10*time.Millisecond)
	assert.Less(t, out.Duration, time.Second)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, ContinueOnFailure, p)
	p, err = ParsePolicy("fail-fast")
	require.NoError(t, err)
	assert.Equal(t, StopOnFailure, p)
	assert.Equal(t, "fail-fast", p.String())
	_, err = ParsePolicy("panic")
	assert.Error(t, err)
}
