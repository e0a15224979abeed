package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/docsync/internal/client/models"
	"github.com/dmitrijs2005/docsync/internal/codec"
	"github.com/dmitrijs2005/docsync/internal/common"
)

type contentsFile struct {
	Type        string `json:"type"`
	Path        string `json:"path"`
	SHA         string `json:"sha"`
	Size        int64  `json:"size"`
	Encoding    string `json:"encoding"`
	Content     string `json:"content"`
	DownloadURL string `json:"download_url"`
}

// inline reports whether the metadata carries the body itself.
func (f contentsFile) inline() bool {
	return f.Encoding == "base64" && f.Content != ""
}

type putContentsRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha"`
	Branch  string `json:"branch,omitempty"`
}

type putContentsResponse struct {
	Content *struct {
		SHA string `json:"sha"`
	} `json:"content"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// FetchDocument reads the document metadata and, when the store did not
// inline the body, fetches the body by its blob sha.
func (c *HTTPClient) FetchDocument(ctx context.Context, cred Credential) (Document, error) {
	const op = "fetch"
	if err := c.checkCredential(op, cred); err != nil {
		return Document{}, err
	}

	meta, err := c.stat(ctx, cred, c.cfg.Branch)
	if err != nil {
		return Document{}, err
	}

	var (
		text []byte
		raw  bool
	)
	if meta.inline() {
		s, err := codec.Decode(meta.Content)
		if err != nil {
			return Document{}, &common.TransferError{Op: op, Err: fmt.Errorf("decoding inline content: %w", err)}
		}
		text = []byte(s)
	} else {
		text, err = c.fetchRaw(ctx, cred, meta)
		if err != nil {
			return Document{}, err
		}
		if !utf8.Valid(text) {
			return Document{}, &common.TransferError{Op: op, Err: codec.ErrInvalidUTF8}
		}
		raw = true
	}

	if c.cfg.VerifyBlobHash {
		if got := codec.BlobHash(text); got != meta.SHA {
			return Document{}, &common.TransferError{Op: op, Err: fmt.Errorf("content hashes to %s, store reported %s", got, meta.SHA)}
		}
	}

	records, err := codec.DecodeDocument(text)
	if err != nil {
		var se *common.ShapeError
		if errors.As(err, &se) {
			se.Path = c.cfg.Path
			return Document{}, se
		}
		return Document{}, &common.TransferError{Op: op, Err: err}
	}

	c.noteShape(meta.SHA, raw)
	c.logger.Debug(ctx, "document fetched", "hash", meta.SHA, "bytes", len(text), "records", len(records), "raw", raw)
	return Document{Hash: meta.SHA, Records: records, Size: int64(len(text)), Raw: raw}, nil
}

// stat returns the contents metadata of the document at ref.
func (c *HTTPClient) stat(ctx context.Context, cred Credential, ref string) (contentsFile, error) {
	const op = "fetch"
	body, err := c.do(ctx, cred, http.MethodGet, c.contentsURL(ref), "", nil)
	if err != nil {
		return contentsFile{}, mapError(op, c.cfg.Path, "", err)
	}
	if k := jsonKind(body); k != "object" {
		if k == "array" {
			k = "directory listing"
		}
		return contentsFile{}, &common.ShapeError{Path: c.cfg.Path, Kind: k}
	}
	var meta contentsFile
	if err := json.Unmarshal(body, &meta); err != nil {
		return contentsFile{}, &common.TransferError{Op: op, Err: fmt.Errorf("decoding metadata: %w", err)}
	}
	if meta.SHA == "" || (meta.Type != "" && meta.Type != "file") {
		kind := "object without sha"
		if meta.Type != "" && meta.Type != "file" {
			kind = meta.Type
		}
		return contentsFile{}, &common.ShapeError{Path: c.cfg.Path, Kind: kind}
	}
	return meta, nil
}

// fetchRaw reads the literal body of meta. The blob endpoint is addressed
// by sha, so it always returns the version the metadata described;
// download_url is the fallback for stores without it.
func (c *HTTPClient) fetchRaw(ctx context.Context, cred Credential, meta contentsFile) ([]byte, error) {
	const op = "fetch"
	body, err := c.do(ctx, cred, http.MethodGet, c.repoURL("git/blobs/"+meta.SHA), common.MediaTypeRaw, nil)
	if err == nil {
		return body, nil
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound || meta.DownloadURL == "" {
		return nil, mapError(op, c.cfg.Path, "", err)
	}

	c.logger.Debug(ctx, "blob endpoint unavailable, using download url", "url", meta.DownloadURL)
	body, err = c.do(ctx, cred, http.MethodGet, meta.DownloadURL, common.MediaTypeRaw, nil)
	if err != nil {
		return nil, mapError(op, c.cfg.Path, "", err)
	}
	return body, nil
}

// WriteDocument serializes records and writes them conditioned on hash.
// The contents endpoint is used unless the body exceeds InlineLimit, the
// store served hash in the raw shape, or the store refuses the contents
// write as too large; those bodies are committed through the git data
// endpoints.
func (c *HTTPClient) WriteDocument(ctx context.Context, cred Credential, hash string, records []models.Record) (string, error) {
	if err := c.checkCredential("write", cred); err != nil {
		return "", err
	}
	body, err := codec.EncodeDocument(records)
	if err != nil {
		return "", err
	}
	msg := messageFrom(ctx, c.cfg.CommitMessage)
	switch {
	case len(body) > c.cfg.InlineLimit:
		c.logger.Debug(ctx, "document above inline limit, committing through git data", "bytes", len(body), "limit", c.cfg.InlineLimit)
		return c.commitLarge(ctx, cred, hash, body, msg)
	case c.servedRaw(hash):
		c.logger.Debug(ctx, "store served the document raw, committing through git data", "bytes", len(body))
		return c.commitLarge(ctx, cred, hash, body, msg)
	}

	newHash, err := c.putContents(ctx, cred, hash, body, msg)
	if tooLarge(err) {
		c.logger.Debug(ctx, "contents write refused as too large, committing through git data", "bytes", len(body))
		return c.commitLarge(ctx, cred, hash, body, msg)
	}
	return newHash, err
}

func (c *HTTPClient) noteShape(hash string, raw bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case raw:
		c.rawHash = hash
	case c.rawHash == hash:
		c.rawHash = ""
	}
}

func (c *HTTPClient) servedRaw(hash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return hash != "" && c.rawHash == hash
}

// tooLarge reports whether err is the store refusing a contents write for
// its size: 413, or a 422 that says the content is too large.
func tooLarge(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusRequestEntityTooLarge:
		return true
	case http.StatusUnprocessableEntity:
		lower := apiErr.text()
		return strings.Contains(lower, "too large") || strings.Contains(lower, "too big")
	}
	return false
}

func (c *HTTPClient) putContents(ctx context.Context, cred Credential, hash string, body []byte, msg string) (string, error) {
	const op = "write"
	req := putContentsRequest{
		Message: msg,
		Content: codec.Encode(string(body)),
		SHA:     hash,
		Branch:  c.cfg.Branch,
	}
	resp, err := c.do(ctx, cred, http.MethodPut, c.contentsURL(""), "", req)
	if err != nil {
		return "", mapError(op, c.cfg.Path, hash, err)
	}
	var out putContentsResponse
	if err := json.Unmarshal(resp, &out); err != nil {
		return "", &common.TransferError{Op: op, Err: fmt.Errorf("decoding write response: %w", err)}
	}
	if out.Content == nil || out.Content.SHA == "" {
		return "", &common.TransferError{Op: op, Err: errors.New("write response carries no content sha")}
	}
	c.logger.Debug(ctx, "document written", "old_hash", hash, "new_hash", out.Content.SHA, "commit", out.Commit.SHA)
	return out.Content.SHA, nil
}
