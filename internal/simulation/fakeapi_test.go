package simulation

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
)

// fakeAPI mirrors the sample load-testing API: token auth through the raw
// Authorization header, a shared in-memory store and a text download.
type fakeAPI struct {
	*httptest.Server

	mu     sync.Mutex
	tokens map[string]string
	db     map[string][]int

	requests atomic.Int64
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	a := &fakeAPI{
		tokens: make(map[string]string),
		db: map[string][]int{
			"users": {1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
			"posts": {11, 12, 13, 14, 15, 16, 17, 18, 19, 20},
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth", a.auth)
	mux.HandleFunc("GET /me", a.authed(func(w http.ResponseWriter, r *http.Request, user string) {
		writeJSON(w, http.StatusOK, map[string]any{"id_user": user})
	}))
	mux.HandleFunc("GET /data", a.authed(func(w http.ResponseWriter, r *http.Request, user string) {
		a.mu.Lock()
		data := map[string][]int{"users": clone(a.db["users"]), "posts": clone(a.db["posts"])}
		a.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"id": user, "data": data})
	}))
	mux.HandleFunc("/data/{kind}", a.authed(a.kind))
	mux.HandleFunc("GET /sample", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, "'Hello stranger. Your random code it's: %s", generateID())
	})

	a.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.requests.Add(1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(a.Close)
	return a
}

func (a *fakeAPI) auth(w http.ResponseWriter, r *http.Request) {
	token := uuid.NewString()
	a.mu.Lock()
	a.tokens[token] = generateID()
	a.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"access_token": token})
}

func (a *fakeAPI) authed(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		if token == "" {
			writeJSON(w, http.StatusForbidden, map[string]any{"detail": "Not authenticated"})
			return
		}
		a.mu.Lock()
		user, ok := a.tokens[token]
		a.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Not authenticated"})
			return
		}
		next(w, r, user)
	}
}

func (a *fakeAPI) kind(w http.ResponseWriter, r *http.Request, user string) {
	kind := r.PathValue("kind")
	a.mu.Lock()
	defer a.mu.Unlock()
	list, ok := a.db[kind]
	if !ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": "unknown kind"})
		return
	}

	status := http.StatusOK
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		v, err := strconv.Atoi(r.URL.Query().Get("value"))
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": "value must be an integer"})
			return
		}
		list = append(list, v)
		status = http.StatusCreated
	case http.MethodPut:
		var body struct {
			Old *int `json:"old"`
			New *int `json:"new"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Old == nil || body.New == nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": "old and new are required"})
			return
		}
		i := indexOf(list, *body.Old)
		if i < 0 {
			writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Not found"})
			return
		}
		list[i] = *body.New
	case http.MethodDelete:
		v, err := strconv.Atoi(r.URL.Query().Get("value"))
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": "value must be an integer"})
			return
		}
		i := indexOf(list, v)
		if i < 0 {
			writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Not found"})
			return
		}
		list = append(list[:i], list[i+1:]...)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	a.db[kind] = list
	writeJSON(w, status, map[string]any{"id": user, "data": clone(list)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func generateID() string {
	var sb strings.Builder
	for i := 0; i < 8; i++ {
		sb.WriteByte(byte('A' + rand.IntN(26)))
	}
	return sb.String()
}

func indexOf(list []int, v int) int {
	for i, x := range list {
		if x == v {
			return i
		}
	}
	return -1
}

func clone(list []int) []int {
	return append([]int{}, list...)
}
