package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dmitrijs2005/docsync/internal/common"
)

type gitRef struct {
	Ref    string `json:"ref"`
	Object struct {
		SHA  string `json:"sha"`
		Type string `json:"type"`
	} `json:"object"`
}

type gitCommit struct {
	SHA  string `json:"sha"`
	Tree struct {
		SHA string `json:"sha"`
	} `json:"tree"`
}

type gitSHA struct {
	SHA string `json:"sha"`
}

type createBlobRequest struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type treeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

type createTreeRequest struct {
	BaseTree string      `json:"base_tree"`
	Tree     []treeEntry `json:"tree"`
}

type createCommitRequest struct {
	Message string   `json:"message"`
	Tree    string   `json:"tree"`
	Parents []string `json:"parents"`
}

type updateRefRequest struct {
	SHA   string `json:"sha"`
	Force bool   `json:"force"`
}

// commitLarge writes body as a new commit on the branch. The document at
// the current head must still hash to hash, and the ref update is a
// fast-forward only, so a concurrent write between the probe and the
// update surfaces as a conflict. The returned hash is the new blob sha.
func (c *HTTPClient) commitLarge(ctx context.Context, cred Credential, hash string, body []byte, msg string) (string, error) {
	const op = "write"
	fail := func(step string, err error) error {
		mapped := mapError(op, c.cfg.Path, hash, err)
		var te *common.TransferError
		if errors.As(mapped, &te) {
			te.Err = fmt.Errorf("%s: %w", step, te.Err)
		}
		return mapped
	}

	var ref gitRef
	if err := c.call(ctx, cred, http.MethodGet, c.repoURL("git/ref/heads/"+escapePath(c.cfg.Branch)), nil, &ref); err != nil {
		return "", fail("reading branch", err)
	}
	head := ref.Object.SHA
	if head == "" {
		return "", &common.TransferError{Op: op, Err: errors.New("reading branch: no head commit")}
	}

	var commit gitCommit
	if err := c.call(ctx, cred, http.MethodGet, c.repoURL("git/commits/"+url.PathEscape(head)), nil, &commit); err != nil {
		return "", fail("reading head commit", err)
	}

	meta, err := c.stat(ctx, cred, head)
	if err != nil {
		return "", err
	}
	if meta.SHA != hash {
		return "", &common.ConflictError{Path: c.cfg.Path, ExpectedHash: hash, Message: fmt.Sprintf("%s is at %s on %s", c.cfg.Path, meta.SHA, head)}
	}

	var blob gitSHA
	if err := c.call(ctx, cred, http.MethodPost, c.repoURL("git/blobs"), createBlobRequest{Content: string(body), Encoding: "utf-8"}, &blob); err != nil {
		return "", fail("creating blob", err)
	}
	if blob.SHA == "" {
		return "", &common.TransferError{Op: op, Err: errors.New("creating blob: no sha returned")}
	}

	var tree gitSHA
	treeReq := createTreeRequest{
		BaseTree: commit.Tree.SHA,
		Tree:     []treeEntry{{Path: c.cfg.Path, Mode: "100644", Type: "blob", SHA: blob.SHA}},
	}
	if err := c.call(ctx, cred, http.MethodPost, c.repoURL("git/trees"), treeReq, &tree); err != nil {
		return "", fail("creating tree", err)
	}

	var created gitSHA
	commitReq := createCommitRequest{Message: msg, Tree: tree.SHA, Parents: []string{head}}
	if err := c.call(ctx, cred, http.MethodPost, c.repoURL("git/commits"), commitReq, &created); err != nil {
		return "", fail("creating commit", err)
	}

	var updated gitRef
	if err := c.call(ctx, cred, http.MethodPatch, c.repoURL("git/refs/heads/"+escapePath(c.cfg.Branch)), updateRefRequest{SHA: created.SHA, Force: false}, &updated); err != nil {
		return "", fail("updating branch", err)
	}

	c.logger.Debug(ctx, "document committed", "old_hash", hash, "new_hash", blob.SHA, "commit", created.SHA, "bytes", len(body))
	return blob.SHA, nil
}

// call sends a JSON request and decodes a JSON response into out.
func (c *HTTPClient) call(ctx context.Context, cred Credential, method, target string, in, out any) error {
	body, err := c.do(ctx, cred, method, target, "", in)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	return nil
}
