package mirror

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CloudNativeWorks/cnw-keyserver/internal/docstore"
)

// fakeGitHub serves the subset of the contents API used by GitHubSink.
type fakeGitHub struct {
	mu     sync.Mutex
	files  map[string]fakeFile
	serial int
	puts   int
	fail   bool
	auth   string
}

type fakeFile struct {
	sha     string
	content []byte
}

func newFakeGitHub(t *testing.T) (*fakeGitHub, *httptest.Server) {
	t.Helper()
	f := &fakeGitHub{files: make(map[string]fakeFile)}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeGitHub) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = r.Header.Get("Authorization")

	if f.fail {
		http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
		return
	}
	const prefix = "/repos/acme/licenses/contents/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, prefix)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	switch r.Method {
	case http.MethodGet:
		file, ok := f.files[path]
		if !ok {
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(contentsResponse{
			SHA:      file.sha,
			Content:  base64.StdEncoding.EncodeToString(file.content),
			Encoding: "base64",
		})
	case http.MethodPut:
		f.puts++
		var req putContentsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		existing, ok := f.files[path]
		if ok && req.SHA == "" {
			http.Error(w, `{"message":"sha wasn't supplied"}`, http.StatusUnprocessableEntity)
			return
		}
		if ok && req.SHA != existing.sha {
			http.Error(w, `{"message":"conflict"}`, http.StatusConflict)
			return
		}
		data, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.serial++
		sha := "sha" + strconv.Itoa(f.serial)
		f.files[path] = fakeFile{sha: sha, content: data}
		status := http.StatusOK
		if !ok {
			status = http.StatusCreated
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"content": map[string]string{"sha": sha}})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// bumpOutOfBand simulates another writer updating the remote file.
func (f *fakeGitHub) bumpOutOfBand(path string, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.serial++
	f.files[path] = fakeFile{sha: "sha" + strconv.Itoa(f.serial), content: []byte(content)}
}

func (f *fakeGitHub) file(path string) (fakeFile, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[path]
	return file, ok
}

func (f *fakeGitHub) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func newTestSink(t *testing.T, srv *httptest.Server) *GitHubSink {
	t.Helper()
	sink, err := NewGitHubSink(GitHubConfig{
		Owner:   "acme",
		Repo:    "licenses",
		Dir:     "state",
		Token:   "secret-token",
		BaseURL: srv.URL,
	})
	require.NoError(t, err)
	return sink
}

func TestNewGitHubSink_RequiresRepo(t *testing.T) {
	_, err := NewGitHubSink(GitHubConfig{Owner: "acme"})
	assert.Error(t, err)
}

func TestGitHubSink_ReadWrite(t *testing.T) {
	fake, srv := newFakeGitHub(t)
	sink := newTestSink(t, srv)
	ctx := context.Background()

	_, _, err := sink.Read(ctx, "keys")
	assert.ErrorIs(t, err, ErrNotFound)

	v1, err := sink.Write(ctx, "keys", []byte(`{"a":1}`), "")
	require.NoError(t, err)
	assert.NotEmpty(t, v1)
	assert.Equal(t, "Bearer secret-token", fake.auth)

	data, token, err := sink.Read(ctx, "keys")
	require.NoError(t, err)
	assert.Equal(t, v1, token)
	assert.JSONEq(t, `{"a":1}`, string(data))

	_, err = sink.Write(ctx, "keys", []byte(`{"a":2}`), "stale")
	assert.ErrorIs(t, err, ErrVersionConflict)

	_, err = sink.Write(ctx, "keys", []byte(`{"a":2}`), "")
	assert.ErrorIs(t, err, ErrVersionConflict, "overwriting without a token must conflict")
}

func TestGitHubSink_ServerError(t *testing.T) {
	fake, srv := newFakeGitHub(t)
	fake.setFail(true)
	sink := newTestSink(t, srv)

	_, _, err := sink.Read(context.Background(), "keys")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))

	_, err = sink.Write(context.Background(), "keys", []byte(`{}`), "")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrVersionConflict))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeRequired, m)

	m, err = ParseMode("best-effort")
	require.NoError(t, err)
	assert.Equal(t, ModeBestEffort, m)

	_, err = ParseMode("sometimes")
	assert.Error(t, err)
}

func saveJSON(t *testing.T, s docstore.Store, name, payload string) error {
	t.Helper()
	doc, err := s.Load(context.Background(), name)
	require.NoError(t, err)
	doc.Data = json.RawMessage(payload)
	_, err = s.Save(context.Background(), doc)
	return err
}

func TestReplicated_RequiredMirrorsEverySave(t *testing.T) {
	fake, srv := newFakeGitHub(t)
	store := NewReplicated(docstore.NewMemoryStore(), newTestSink(t, srv))

	require.NoError(t, saveJSON(t, store, "keys", `{"v":1}`))
	require.NoError(t, saveJSON(t, store, "keys", `{"v":2}`))

	file, ok := fake.file("state/keys.json")
	require.True(t, ok)
	assert.JSONEq(t, `{"v":2}`, string(file.content))

	doc, err := store.Load(context.Background(), "keys")
	require.NoError(t, err)
	assert.Equal(t, int64(2), doc.Version)
}

func TestReplicated_RetriesOnceAfterOutOfBandChange(t *testing.T) {
	fake, srv := newFakeGitHub(t)
	store := NewReplicated(docstore.NewMemoryStore(), newTestSink(t, srv))

	require.NoError(t, saveJSON(t, store, "audit", `{"seq":1}`))
	fake.bumpOutOfBand("state/audit.json", `{"seq":99}`)

	require.NoError(t, saveJSON(t, store, "audit", `{"seq":2}`))
	file, _ := fake.file("state/audit.json")
	assert.JSONEq(t, `{"seq":2}`, string(file.content))
}

func TestReplicated_RequiredFailureSkipsLocal(t *testing.T) {
	fake, srv := newFakeGitHub(t)
	local := docstore.NewMemoryStore()
	store := NewReplicated(local, newTestSink(t, srv))

	fake.setFail(true)
	err := saveJSON(t, store, "keys", `{"v":1}`)
	require.ErrorIs(t, err, docstore.ErrUnavailable)

	doc, err := local.Load(context.Background(), "keys")
	require.NoError(t, err)
	assert.True(t, doc.Empty(), "local store must not change when the mirror rejects the write")
}

func TestReplicated_BestEffortKeepsLocal(t *testing.T) {
	fake, srv := newFakeGitHub(t)
	local := docstore.NewMemoryStore()
	store := NewReplicated(local, newTestSink(t, srv), WithMode(ModeBestEffort))

	fake.setFail(true)
	require.NoError(t, saveJSON(t, store, "keys", `{"v":1}`))

	doc, err := local.Load(context.Background(), "keys")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(doc.Data))

	fake.setFail(false)
	require.NoError(t, saveJSON(t, store, "keys", `{"v":2}`))
	file, ok := fake.file("state/keys.json")
	require.True(t, ok)
	assert.JSONEq(t, `{"v":2}`, string(file.content))
}

func TestReplicated_LocalConflictStillReported(t *testing.T) {
	_, srv := newFakeGitHub(t)
	store := NewReplicated(docstore.NewMemoryStore(), newTestSink(t, srv))
	ctx := context.Background()

	stale, err := store.Load(ctx, "keys")
	require.NoError(t, err)
	require.NoError(t, saveJSON(t, store, "keys", `{"v":1}`))

	stale.Data = json.RawMessage(`{"v":"stale"}`)
	_, err = store.Save(ctx, stale)
	assert.ErrorIs(t, err, docstore.ErrVersionConflict)
}

func TestReplicated_LocalConflictRestoresMirror(t *testing.T) {
	fake, srv := newFakeGitHub(t)
	local := docstore.NewMemoryStore()
	store := NewReplicated(local, newTestSink(t, srv))
	ctx := context.Background()

	stale, err := store.Load(ctx, "keys")
	require.NoError(t, err)
	require.NoError(t, saveJSON(t, store, "keys", `{"v":1}`))

	stale.Data = json.RawMessage(`{"v":"stale"}`)
	_, err = store.Save(ctx, stale)
	require.ErrorIs(t, err, docstore.ErrVersionConflict)

	file, ok := fake.file("state/keys.json")
	require.True(t, ok)
	assert.JSONEq(t, `{"v":1}`, string(file.content), "mirror must match the local winner")

	require.NoError(t, saveJSON(t, store, "keys", `{"v":2}`))
	file, _ = fake.file("state/keys.json")
	assert.JSONEq(t, `{"v":2}`, string(file.content))
}
