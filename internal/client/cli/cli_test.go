package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dmitrijs2005/docsync/internal/client/client"
	"github.com/dmitrijs2005/docsync/internal/client/config"
	"github.com/dmitrijs2005/docsync/internal/client/models"
	"github.com/dmitrijs2005/docsync/internal/client/services"
	"github.com/dmitrijs2005/docsync/internal/common"
	"github.com/dmitrijs2005/docsync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type updateCall struct {
	id      string
	changes models.Changes
	token   string
}

type fakeDocs struct {
	records   []models.Record
	updateErr error
	deleteErr error
	warning   error
	updates   []updateCall
	deletes   []string
}

func (f *fakeDocs) Update(_ context.Context, cred client.Credential, id string, c models.Changes) (services.Result, error) {
	f.updates = append(f.updates, updateCall{id: id, changes: c, token: cred.Token})
	if f.updateErr != nil {
		return services.Result{}, f.updateErr
	}
	return services.Result{Hash: "h2", Attempts: 1, Warning: f.warning}, nil
}

func (f *fakeDocs) Delete(_ context.Context, _ client.Credential, id string) (services.Result, error) {
	f.deletes = append(f.deletes, id)
	if f.deleteErr != nil {
		return services.Result{}, f.deleteErr
	}
	return services.Result{Hash: "h3", Attempts: 2}, nil
}

func (f *fakeDocs) Get(_ context.Context, _ client.Credential, id string) (models.Record, error) {
	for _, r := range f.records {
		if r.ID == id {
			return r, nil
		}
	}
	return models.Record{}, &common.OperationError{Op: "get", RecordID: id, Kind: common.ErrNotFound}
}

func (f *fakeDocs) List(context.Context, client.Credential) (client.Document, error) {
	return client.Document{Hash: "h1", Records: f.records}, nil
}

type fakeUploader struct {
	names []string
}

func (u *fakeUploader) Upload(_ context.Context, name string, data []byte) (models.Media, error) {
	u.names = append(u.names, name)
	return models.Media{Type: models.MediaTypeImage, URL: "/media/" + name, Name: name, Size: int64(len(data))}, nil
}

type harness struct {
	docs     *fakeDocs
	uploader *fakeUploader
	out      bytes.Buffer
	err      bytes.Buffer
	in       string
	cfg      *config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("DOCSYNC_OWNER", "acme")
	t.Setenv("DOCSYNC_REPO", "site")
	t.Setenv("DOCSYNC_TOKEN", "tok")
	return &harness{
		docs: &fakeDocs{records: []models.Record{
			{ID: "p1", Title: "First", Media: []models.Media{}},
			{ID: "p2", Title: "CafÃ© night", Description: "fine"},
		}},
		uploader: &fakeUploader{},
	}
}

func (h *harness) run(args ...string) int {
	return Execute(context.Background(), args, Options{
		In:  strings.NewReader(h.in),
		Out: &h.out,
		Err: &h.err,
		NewDocuments: func(cfg *config.Config, _ logging.Logger) (services.DocumentService, error) {
			h.cfg = cfg
			return h.docs, nil
		},
		NewUploader: func(context.Context, *config.Config, logging.Logger) (Uploader, error) {
			return h.uploader, nil
		},
	})
}

func TestUpdate_Flags(t *testing.T) {
	h := newHarness(t)

	code := h.run("update", "p1", "--title", "New", "--clear-background", "--branch", "preview")
	require.Equal(t, 0, code, h.err.String())

	require.Len(t, h.docs.updates, 1)
	u := h.docs.updates[0]
	assert.Equal(t, "p1", u.id)
	assert.Equal(t, "tok", u.token)
	v, ok := u.changes.Title.Value()
	assert.True(t, ok)
	assert.Equal(t, "New", v)
	assert.Equal(t, models.Clear, u.changes.BackgroundImage.State())
	assert.Equal(t, models.Unset, u.changes.Description.State())
	assert.Equal(t, "preview", h.cfg.Branch)
	assert.Equal(t, "updated p1 at h2 (attempts: 1)\n", h.out.String())
}

func TestUpdate_ChangesJSON(t *testing.T) {
	h := newHarness(t)

	code := h.run("update", "p1", "--changes", `{"description":"D","media":[{"type":"image","url":"/a.png"}],"backgroundImage":null}`)
	require.Equal(t, 0, code, h.err.String())

	c := h.docs.updates[0].changes
	assert.Equal(t, models.Set, c.Description.State())
	media, ok := c.Media.Value()
	require.True(t, ok)
	assert.Equal(t, "/a.png", media[0].URL)
	assert.Equal(t, models.Clear, c.BackgroundImage.State())
}

func TestUpdate_ChangesFromFile(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "changes.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"title":"From file"}`), 0o600))

	require.Equal(t, 0, h.run("update", "p1", "--changes", "@"+path))
	v, _ := h.docs.updates[0].changes.Title.Value()
	assert.Equal(t, "From file", v)
}

func TestUpdate_BadChangesJSON(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, 1, h.run("update", "p1", "--changes", `{"title":`))
	assert.Empty(t, h.docs.updates)
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		hint string
	}{
		{"not found", &common.OperationError{Op: "update", RecordID: "p1", Kind: common.ErrNotFound}, 1, ""},
		{"unavailable", &common.OperationError{Op: "update", RecordID: "p1", Kind: common.ErrUnavailable}, 2, ""},
		{"exhausted", &common.OperationError{Op: "update", RecordID: "p1", Kind: common.ErrConcurrencyExhausted}, 3, "try again"},
		{"corruption", &common.OperationError{Op: "update", RecordID: "p1", Kind: common.ErrCorruptionRisk}, 4, "nothing was written"},
		{"expired", &common.PermissionError{Op: "update", Err: common.ErrTokenExpired}, 1, "expired"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.docs.updateErr = tt.err
			code := h.run("update", "p1", "--title", "x")
			assert.Equal(t, tt.code, code)
			assert.Contains(t, h.err.String(), "docsync: ")
			if tt.hint != "" {
				assert.Contains(t, h.err.String(), tt.hint)
			}
		})
	}
}

func TestUpdate_WarningIsNotFailure(t *testing.T) {
	h := newHarness(t)
	h.docs.warning = errors.New("store serves h9")

	assert.Equal(t, 0, h.run("update", "p1", "--title", "x"))
	assert.Contains(t, h.err.String(), "warning: store serves h9")
}

func TestDelete_Confirmation(t *testing.T) {
	t.Run("confirmed", func(t *testing.T) {
		h := newHarness(t)
		h.in = "p2\n"
		require.Equal(t, 0, h.run("delete", "p2"))
		assert.Equal(t, []string{"p2"}, h.docs.deletes)
		assert.Contains(t, h.out.String(), "deleted p2 at h3 (attempts: 2)")
	})

	t.Run("mismatch", func(t *testing.T) {
		h := newHarness(t)
		h.in = "p1\n"
		assert.Equal(t, 1, h.run("delete", "p2"))
		assert.Empty(t, h.docs.deletes)
	})

	t.Run("yes flag", func(t *testing.T) {
		h := newHarness(t)
		require.Equal(t, 0, h.run("delete", "-y", "p2"))
		assert.Equal(t, []string{"p2"}, h.docs.deletes)
	})
}

func TestCredential(t *testing.T) {
	oldTerm, oldRead := stdinIsTerminal, readPassword
	t.Cleanup(func() { stdinIsTerminal, readPassword = oldTerm, oldRead })

	t.Run("missing token without terminal", func(t *testing.T) {
		h := newHarness(t)
		t.Setenv("DOCSYNC_TOKEN", "")
		stdinIsTerminal = func() bool { return false }

		assert.Equal(t, 1, h.run("update", "p1", "--title", "x"))
		assert.Empty(t, h.docs.updates)
		assert.Contains(t, h.err.String(), "DOCSYNC_TOKEN")
	})

	t.Run("prompted", func(t *testing.T) {
		h := newHarness(t)
		t.Setenv("DOCSYNC_TOKEN", "")
		stdinIsTerminal = func() bool { return true }
		readPassword = func(int) ([]byte, error) { return []byte("typed\n"), nil }

		require.Equal(t, 0, h.run("update", "p1", "--title", "x"))
		assert.Equal(t, "typed", h.docs.updates[0].token)
	})
}

func TestInvalidConfig(t *testing.T) {
	h := newHarness(t)
	t.Setenv("DOCSYNC_REPO", "")

	code := h.run("list")
	assert.Equal(t, 2, code)
	assert.Contains(t, h.err.String(), "owner and repo")
}

func TestGetAndList(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, 0, h.run("get", "p1"))
	assert.Contains(t, h.out.String(), `"title": "First"`)

	h.out.Reset()
	require.Equal(t, 0, h.run("list"))
	assert.Contains(t, h.out.String(), "ID")
	assert.Contains(t, h.out.String(), "p2")
	assert.Contains(t, h.err.String(), "2 records at h1")

	assert.Equal(t, 1, h.run("get", "missing"))
}

func TestScan(t *testing.T) {
	t.Run("report only", func(t *testing.T) {
		h := newHarness(t)
		require.Equal(t, 0, h.run("scan"))
		assert.Contains(t, h.out.String(), "p2")
		assert.NotContains(t, h.out.String(), "p1")
		assert.Empty(t, h.docs.updates)
	})

	t.Run("repair", func(t *testing.T) {
		h := newHarness(t)
		require.Equal(t, 0, h.run("scan", "--repair"))
		require.Len(t, h.docs.updates, 1)
		u := h.docs.updates[0]
		assert.Equal(t, "p2", u.id)
		v, _ := u.changes.Title.Value()
		assert.Equal(t, "Café night", v)
		assert.Equal(t, models.Unset, u.changes.Description.State())
	})
}

func TestAttach(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	require.NoError(t, os.WriteFile(a, []byte("aaa"), 0o600))
	require.NoError(t, os.WriteFile(b, []byte("bb"), 0o600))

	require.Equal(t, 0, h.run("attach", "p1", a, b, "--background"))

	assert.Equal(t, []string{"a.png", "b.png"}, h.uploader.names)
	c := h.docs.updates[0].changes
	require.Len(t, c.MediaAppend, 2)
	assert.Equal(t, "/media/a.png", c.MediaAppend[0].URL)
	bg, _ := c.BackgroundImage.Value()
	assert.Equal(t, "/media/a.png", bg)
}

func TestAttach_TooMany(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, 1, h.run("attach", "p1", "1", "2", "3", "4", "5"))
	assert.Empty(t, h.uploader.names)
}

func TestUpload(t *testing.T) {
	h := newHarness(t)
	f := filepath.Join(t.TempDir(), "c.png")
	require.NoError(t, os.WriteFile(f, []byte("c"), 0o600))

	require.Equal(t, 0, h.run("upload", f))
	assert.Contains(t, h.out.String(), `"url": "/media/c.png"`)
	assert.Empty(t, h.docs.updates)
}

func TestConfigInit(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "docsync.yaml")

	require.Equal(t, 0, h.run("config", "init", path, "--owner", "someone"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "owner: someone")
	assert.NotContains(t, string(data), "token:")

	assert.Equal(t, 2, h.run("config", "init", path))

	t.Setenv("DOCSYNC_OWNER", "")
	v := config.NewViper()
	cfg, err := config.Load(v, path)
	require.NoError(t, err)
	assert.Equal(t, "someone", cfg.Owner)
}

func TestGetSimpleText(t *testing.T) {
	var out bytes.Buffer
	got, err := GetSimpleText(rdr("hello world\n"), "Name?", &out)
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
	assert.Equal(t, "Name?\n> ", out.String())

	got, err = GetSimpleText(rdr("lastline"), "Name?", &out)
	require.NoError(t, err)
	assert.Equal(t, "lastline", got)
}

func TestGetToken_Error(t *testing.T) {
	old := readPassword
	defer func() { readPassword = old }()
	readPassword = func(int) ([]byte, error) { return nil, errors.New("boom") }

	var out bytes.Buffer
	_, err := GetToken(&out)
	assert.Error(t, err)
}
