// Package services contains the server-side logic of docstore: the
// repository contents and git data operations, expressed over the object
// repository. Every write ends in a compare-and-swap of the branch head, so
// concurrent writers never lose each other's commits.
package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	pathpkg "path"
	"strings"
	"time"

	"github.com/dmitrijs2005/docsync/internal/common"
	"github.com/dmitrijs2005/docsync/internal/logging"
	"github.com/dmitrijs2005/docsync/internal/metrics"
	"github.com/dmitrijs2005/docsync/internal/server/models"
	"github.com/dmitrijs2005/docsync/internal/server/repositories/objects"
	"github.com/dmitrijs2005/docsync/internal/timex"
)

// base64LineLength matches the line wrapping of inline contents payloads.
const base64LineLength = 60

type Options struct {
	Branch      string
	InlineLimit int64
	Author      string
	Clock       timex.Clock
	Logger      logging.Logger
}

// ContentsService serves one repository.
type ContentsService struct {
	repo        objects.Repository
	branch      string
	inlineLimit int64
	author      string
	clock       timex.Clock
	logger      logging.Logger
}

func NewContentsService(repo objects.Repository, opts Options) *ContentsService {
	if opts.Branch == "" {
		opts.Branch = "main"
	}
	if opts.InlineLimit <= 0 {
		opts.InlineLimit = 1 << 20
	}
	if opts.Author == "" {
		opts.Author = "docstore"
	}
	if opts.Clock == nil {
		opts.Clock = timex.Real()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &ContentsService{
		repo:        repo,
		branch:      opts.Branch,
		inlineLimit: opts.InlineLimit,
		author:      opts.Author,
		clock:       opts.Clock,
		logger:      opts.Logger,
	}
}

// DefaultBranch is the branch used when a request names none.
func (s *ContentsService) DefaultBranch() string {
	return s.branch
}

// GetContents returns the metadata of the file at path as of ref, a branch
// name or commit sha. Files above the inline limit come back without
// content and with encoding "none".
func (s *ContentsService) GetContents(ctx context.Context, path, ref string) (File, error) {
	commit, entry, err := s.lookup(ctx, path, ref)
	if err != nil {
		return File{}, err
	}
	blob, err := s.object(ctx, entry.SHA, models.KindBlob)
	if err != nil {
		return File{}, err
	}

	f := File{
		Type:   "file",
		Name:   pathpkg.Base(entry.Path),
		Path:   entry.Path,
		SHA:    blob.SHA,
		Size:   int64(len(blob.Data)),
		Commit: commit,
	}
	if f.Size > s.inlineLimit {
		f.Encoding = "none"
	} else {
		f.Encoding = "base64"
		f.Content = wrapBase64(blob.Data)
	}
	return f, nil
}

// ReadFile returns the bytes of the file at path as of ref.
func (s *ContentsService) ReadFile(ctx context.Context, path, ref string) ([]byte, error) {
	_, entry, err := s.lookup(ctx, path, ref)
	if err != nil {
		return nil, err
	}
	blob, err := s.object(ctx, entry.SHA, models.KindBlob)
	if err != nil {
		return nil, err
	}
	return blob.Data, nil
}

// PutContents creates or replaces the file at path. Replacing requires the
// sha of the current blob; a stale sha or a head that moved while the
// commit was being built yields 409.
func (s *ContentsService) PutContents(ctx context.Context, path string, req PutContentsRequest) (PutContentsResult, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return PutContentsResult{}, unprocessable("path is required")
	}
	if req.Message == "" {
		return PutContentsResult{}, unprocessable("message is required")
	}
	data, err := base64.StdEncoding.DecodeString(stripWhitespace(req.Content))
	if err != nil {
		return PutContentsResult{}, unprocessable("content is not valid Base64")
	}
	branch := req.Branch
	if branch == "" {
		branch = s.branch
	}

	head, tree, err := s.headTree(ctx, branch)
	if err != nil {
		return PutContentsResult{}, err
	}

	cur, exists := tree.Lookup(path)
	switch {
	case exists && req.SHA == "":
		return PutContentsResult{}, unprocessable(`Invalid request. "sha" wasn't supplied.`)
	case exists && req.SHA != cur.SHA, !exists && req.SHA != "":
		return PutContentsResult{}, newStatusError(http.StatusConflict, "%s does not match %s", path, req.SHA)
	}

	blob := models.NewObject(models.KindBlob, data)
	commit, err := s.commitFile(ctx, branch, head, tree, path, blob, req.Message)
	if errors.Is(err, common.ErrVersionConflict) {
		return PutContentsResult{}, newStatusError(http.StatusConflict, "%s does not match %s", path, req.SHA)
	}
	if err != nil {
		return PutContentsResult{}, err
	}

	s.logger.Info(ctx, "contents updated", "path", path, "branch", branch, "blob", blob.SHA, "commit", commit.SHA)
	return PutContentsResult{
		Content: FileRef{Name: pathpkg.Base(path), Path: path, SHA: blob.SHA, Size: int64(len(data))},
		Commit:  commit,
		Created: !exists,
	}, nil
}

// Seed commits data at path on the default branch unless the path already
// exists. It reports whether a commit was made.
func (s *ContentsService) Seed(ctx context.Context, path string, data []byte) (bool, error) {
	path = strings.Trim(path, "/")
	for {
		head, tree, err := s.headTree(ctx, s.branch)
		if err != nil {
			return false, err
		}
		if _, ok := tree.Lookup(path); ok {
			return false, nil
		}
		blob := models.NewObject(models.KindBlob, data)
		_, err = s.commitFile(ctx, s.branch, head, tree, path, blob, "seed "+path)
		if errors.Is(err, common.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return false, err
		}
		s.logger.Info(ctx, "seeded document", "path", path, "bytes", len(data))
		return true, nil
	}
}

// commitFile writes blob at path on top of head and moves the branch.
// An empty head creates the branch.
func (s *ContentsService) commitFile(ctx context.Context, branch, head string, tree models.Tree, path string, blob models.Object, msg string) (CommitInfo, error) {
	next := tree.With(models.TreeEntry{Path: path, Mode: "100644", Type: "blob", SHA: blob.SHA})
	treeData, err := next.Encode()
	if err != nil {
		return CommitInfo{}, err
	}
	treeObj := models.NewObject(models.KindTree, treeData)

	c := models.Commit{Tree: treeObj.SHA, Message: msg, Author: s.author, Committed: s.clock.Now().UTC()}
	if head != "" {
		c.Parents = []string{head}
	}
	commitData, err := c.Encode()
	if err != nil {
		return CommitInfo{}, err
	}
	commitObj := models.NewObject(models.KindCommit, commitData)

	if err := s.repo.PutObjects(ctx, blob, treeObj, commitObj); err != nil {
		return CommitInfo{}, fmt.Errorf("store objects: %w", err)
	}
	if err := s.swapHead(ctx, branch, head, commitObj.SHA); err != nil {
		return CommitInfo{}, err
	}
	return commitInfo(commitObj.SHA, c), nil
}

// swapHead moves branch from old to new and records the outcome.
func (s *ContentsService) swapHead(ctx context.Context, branch, old, new string) error {
	err := s.repo.SwapHead(ctx, models.BranchRef(branch), old, new)
	switch {
	case err == nil:
		metrics.HeadUpdates.WithLabelValues("ok").Inc()
	case errors.Is(err, common.ErrVersionConflict):
		metrics.HeadUpdates.WithLabelValues("conflict").Inc()
		s.logger.Info(ctx, "head moved concurrently", "branch", branch, "expected", old)
	default:
		metrics.HeadUpdates.WithLabelValues("error").Inc()
		return fmt.Errorf("swap head: %w", err)
	}
	return err
}

// headTree returns the head commit and tree of branch. A missing branch
// has an empty head and an empty tree.
func (s *ContentsService) headTree(ctx context.Context, branch string) (string, models.Tree, error) {
	head, err := s.repo.GetHead(ctx, models.BranchRef(branch))
	if errors.Is(err, common.ErrObjectNotFound) {
		return "", models.Tree{}, nil
	}
	if err != nil {
		return "", models.Tree{}, err
	}
	tree, err := s.commitTree(ctx, head)
	if err != nil {
		return "", models.Tree{}, err
	}
	return head, tree, nil
}

// lookup resolves ref and finds path in its tree.
func (s *ContentsService) lookup(ctx context.Context, path, ref string) (string, models.TreeEntry, error) {
	commit, err := s.resolve(ctx, ref)
	if err != nil {
		return "", models.TreeEntry{}, err
	}
	tree, err := s.commitTree(ctx, commit)
	if err != nil {
		return "", models.TreeEntry{}, err
	}
	entry, ok := tree.Lookup(strings.Trim(path, "/"))
	if !ok {
		return "", models.TreeEntry{}, notFound()
	}
	return commit, entry, nil
}

// resolve maps a branch name or commit sha to a commit sha.
func (s *ContentsService) resolve(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		ref = s.branch
	}
	head, err := s.repo.GetHead(ctx, models.BranchRef(strings.TrimPrefix(ref, "heads/")))
	if err == nil {
		return head, nil
	}
	if !errors.Is(err, common.ErrObjectNotFound) {
		return "", err
	}
	if _, err := s.object(ctx, ref, models.KindCommit); err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			return "", newStatusError(http.StatusNotFound, "No commit found for the ref %s", ref)
		}
		return "", err
	}
	return ref, nil
}

func (s *ContentsService) commitTree(ctx context.Context, sha string) (models.Tree, error) {
	obj, err := s.object(ctx, sha, models.KindCommit)
	if err != nil {
		return models.Tree{}, err
	}
	c, err := models.DecodeCommit(obj.Data)
	if err != nil {
		return models.Tree{}, err
	}
	treeObj, err := s.object(ctx, c.Tree, models.KindTree)
	if err != nil {
		return models.Tree{}, err
	}
	return models.DecodeTree(treeObj.Data)
}

// object loads sha and checks its kind. Unknown objects and kind
// mismatches are 404.
func (s *ContentsService) object(ctx context.Context, sha string, kind models.ObjectKind) (models.Object, error) {
	obj, err := s.repo.GetObject(ctx, sha)
	if errors.Is(err, common.ErrObjectNotFound) {
		return models.Object{}, notFound()
	}
	if err != nil {
		return models.Object{}, err
	}
	if obj.Kind != kind {
		return models.Object{}, notFound()
	}
	return obj, nil
}

func commitInfo(sha string, c models.Commit) CommitInfo {
	info := CommitInfo{
		SHA:     sha,
		Tree:    SHARef{SHA: c.Tree},
		Parents: make([]SHARef, 0, len(c.Parents)),
		Message: c.Message,
	}
	for _, p := range c.Parents {
		info.Parents = append(info.Parents, SHARef{SHA: p})
	}
	sig := Signature{Name: c.Author, Date: c.Committed.UTC().Format(time.RFC3339)}
	info.Author, info.Committer = sig, sig
	return info
}

// wrapBase64 encodes data with a newline after every base64LineLength
// characters.
func wrapBase64(data []byte) string {
	enc := base64.StdEncoding.EncodeToString(data)
	var b strings.Builder
	b.Grow(len(enc) + len(enc)/base64LineLength + 1)
	for len(enc) > base64LineLength {
		b.WriteString(enc[:base64LineLength])
		b.WriteByte('\n')
		enc = enc[base64LineLength:]
	}
	b.WriteString(enc)
	if b.Len() > 0 {
		b.WriteByte('\n')
	}
	return b.String()
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)
}
