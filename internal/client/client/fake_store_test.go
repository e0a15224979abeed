package client

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/dmitrijs2005/docsync/internal/codec"
)

// fakeStore is a single-file contents API used by the client tests.
type fakeStore struct {
	t *testing.T

	mu        sync.Mutex
	body      []byte
	head      int
	inlineMax int
	calls     []string

	pendingBlob []byte

	// hooks
	onGetMeta   func(w http.ResponseWriter) bool
	onPut       func(w http.ResponseWriter) bool
	beforeRef   func()
	beforePatch func()
	noBlobAPI   bool
}

func newFakeStore(t *testing.T, body string) (*fakeStore, *httptest.Server) {
	t.Helper()
	fs := &fakeStore{t: t, body: []byte(body), inlineMax: 1 << 20}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/o/r/contents/data/doc.json", fs.getMeta)
	mux.HandleFunc("PUT /repos/o/r/contents/data/doc.json", fs.put)
	mux.HandleFunc("GET /repos/o/r/git/blobs/{sha}", fs.getBlob)
	mux.HandleFunc("GET /raw/data/doc.json", fs.getDownload)
	mux.HandleFunc("GET /repos/o/r/git/ref/heads/main", fs.getRef)
	mux.HandleFunc("GET /repos/o/r/git/commits/{sha}", fs.getCommit)
	mux.HandleFunc("POST /repos/o/r/git/blobs", fs.postBlob)
	mux.HandleFunc("POST /repos/o/r/git/trees", fs.postTree)
	mux.HandleFunc("POST /repos/o/r/git/commits", fs.postCommit)
	mux.HandleFunc("PATCH /repos/o/r/git/refs/heads/main", fs.patchRef)
	srv := httptest.NewServer(fs.record(mux))
	t.Cleanup(srv.Close)
	return fs, srv
}

func (fs *fakeStore) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.calls = append(fs.calls, r.Method+" "+r.URL.Path)
		fs.mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer tok" && !strings.HasPrefix(r.URL.Path, "/raw/") {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (fs *fakeStore) Calls() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]string(nil), fs.calls...)
}

func (fs *fakeStore) sha() string { return codec.BlobHash(fs.body) }

func (fs *fakeStore) commitSHA() string { return fmt.Sprintf("c%039d", fs.head) }

func (fs *fakeStore) Body() string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return string(fs.body)
}

// SetBody simulates a write by another client.
func (fs *fakeStore) SetBody(b string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.body = []byte(b)
	fs.head++
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func wrapLines(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i += 60 {
		end := min(i+60, len(s))
		b.WriteString(s[i:end])
		b.WriteByte('\n')
	}
	return b.String()
}

func (fs *fakeStore) getMeta(w http.ResponseWriter, r *http.Request) {
	if fs.onGetMeta != nil && fs.onGetMeta(w) {
		return
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	meta := map[string]any{
		"type":         "file",
		"path":         "data/doc.json",
		"sha":          fs.sha(),
		"size":         len(fs.body),
		"download_url": "http://" + r.Host + "/raw/data/doc.json",
	}
	if len(fs.body) <= fs.inlineMax {
		meta["encoding"] = "base64"
		meta["content"] = wrapLines(base64.StdEncoding.EncodeToString(fs.body))
	} else {
		meta["encoding"] = "none"
		meta["content"] = ""
	}
	writeJSON(w, http.StatusOK, meta)
}

func (fs *fakeStore) getBlob(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.noBlobAPI || r.PathValue("sha") != fs.sha() {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	_, _ = w.Write(fs.body)
}

func (fs *fakeStore) getDownload(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, _ = w.Write(fs.body)
}

func (fs *fakeStore) put(w http.ResponseWriter, r *http.Request) {
	if fs.onPut != nil && fs.onPut(w) {
		return
	}
	var req putContentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if req.SHA != fs.sha() {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "data/doc.json does not match " + req.SHA})
		return
	}
	b, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	fs.body = b
	fs.head++
	writeJSON(w, http.StatusOK, map[string]any{
		"content": map[string]string{"sha": fs.sha()},
		"commit":  map[string]string{"sha": fs.commitSHA()},
	})
}

func (fs *fakeStore) getRef(w http.ResponseWriter, r *http.Request) {
	if fs.beforeRef != nil {
		fs.beforeRef()
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"ref": "refs/heads/main", "object": map[string]string{"sha": fs.commitSHA(), "type": "commit"}})
}

func (fs *fakeStore) getCommit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sha": r.PathValue("sha"), "tree": map[string]string{"sha": "t" + r.PathValue("sha")}})
}

func (fs *fakeStore) postBlob(w http.ResponseWriter, r *http.Request) {
	var req createBlobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Encoding != "utf-8" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "bad blob"})
		return
	}
	fs.mu.Lock()
	fs.pendingBlob = []byte(req.Content)
	fs.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]string{"sha": codec.BlobHash([]byte(req.Content))})
}

func (fs *fakeStore) postTree(w http.ResponseWriter, r *http.Request) {
	var req createTreeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Tree) != 1 || req.Tree[0].Path != "data/doc.json" || req.BaseTree == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "bad tree"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"sha": "tree-new"})
}

func (fs *fakeStore) postCommit(w http.ResponseWriter, r *http.Request) {
	var req createCommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Parents) != 1 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "bad commit"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"sha": "new:" + req.Parents[0]})
}

// patchRef fast-forwards the branch. Commits created by postCommit carry
// their parent in the sha, so a stale parent is detected here.
func (fs *fakeStore) patchRef(w http.ResponseWriter, r *http.Request) {
	if fs.beforePatch != nil {
		fs.beforePatch()
	}
	var req updateRefRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if req.Force || req.SHA != "new:"+fs.commitSHA() {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Update is not a fast forward"})
		return
	}
	fs.body = fs.pendingBlob
	fs.head++
	writeJSON(w, http.StatusOK, map[string]any{"ref": "refs/heads/main", "object": map[string]string{"sha": fs.commitSHA()}})
}
