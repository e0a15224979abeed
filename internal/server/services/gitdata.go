package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/docsync/internal/common"
	"github.com/dmitrijs2005/docsync/internal/server/models"
)

// maxAncestryWalk bounds the commits visited by a fast-forward check.
const maxAncestryWalk = 10000

// GetBlob returns the blob sha base64 encoded.
func (s *ContentsService) GetBlob(ctx context.Context, sha string) (Blob, error) {
	obj, err := s.object(ctx, sha, models.KindBlob)
	if err != nil {
		return Blob{}, err
	}
	return Blob{SHA: obj.SHA, Size: int64(len(obj.Data)), Encoding: "base64", Content: wrapBase64(obj.Data)}, nil
}

// ReadBlob returns the literal bytes of blob sha.
func (s *ContentsService) ReadBlob(ctx context.Context, sha string) ([]byte, error) {
	obj, err := s.object(ctx, sha, models.KindBlob)
	if err != nil {
		return nil, err
	}
	return obj.Data, nil
}

func (s *ContentsService) CreateBlob(ctx context.Context, req CreateBlobRequest) (SHARef, error) {
	var data []byte
	switch strings.ToLower(req.Encoding) {
	case "", "utf-8", "utf8":
		if !utf8.ValidString(req.Content) {
			return SHARef{}, unprocessable("content is not valid UTF-8")
		}
		data = []byte(req.Content)
	case "base64":
		var err error
		if data, err = base64.StdEncoding.DecodeString(stripWhitespace(req.Content)); err != nil {
			return SHARef{}, unprocessable("content is not valid Base64")
		}
	default:
		return SHARef{}, unprocessable("encoding must be utf-8 or base64")
	}

	blob := models.NewObject(models.KindBlob, data)
	if err := s.repo.PutObjects(ctx, blob); err != nil {
		return SHARef{}, fmt.Errorf("store blob: %w", err)
	}
	return SHARef{SHA: blob.SHA}, nil
}

// CreateTree applies the entries of req to base_tree, or to an empty tree
// when none is given. Every entry must name an existing blob.
func (s *ContentsService) CreateTree(ctx context.Context, req CreateTreeRequest) (TreeInfo, error) {
	var base models.Tree
	if req.BaseTree != "" {
		obj, err := s.object(ctx, req.BaseTree, models.KindTree)
		if err != nil {
			return TreeInfo{}, unprocessable("base_tree %s does not exist", req.BaseTree)
		}
		if base, err = models.DecodeTree(obj.Data); err != nil {
			return TreeInfo{}, err
		}
	}

	changes := make([]models.TreeEntry, 0, len(req.Tree))
	for _, e := range req.Tree {
		path := strings.Trim(e.Path, "/")
		if path == "" {
			return TreeInfo{}, unprocessable("tree entry without path")
		}
		if e.Type != "" && e.Type != "blob" {
			return TreeInfo{}, unprocessable("unsupported tree entry type %q", e.Type)
		}
		if e.Mode != "" && e.Mode != "100644" {
			return TreeInfo{}, unprocessable("unsupported tree entry mode %q", e.Mode)
		}
		if _, err := s.object(ctx, e.SHA, models.KindBlob); err != nil {
			return TreeInfo{}, unprocessable("blob %s does not exist", e.SHA)
		}
		changes = append(changes, models.TreeEntry{Path: path, Mode: "100644", Type: "blob", SHA: e.SHA})
	}

	tree := base.With(changes...)
	data, err := tree.Encode()
	if err != nil {
		return TreeInfo{}, err
	}
	obj := models.NewObject(models.KindTree, data)
	if err := s.repo.PutObjects(ctx, obj); err != nil {
		return TreeInfo{}, fmt.Errorf("store tree: %w", err)
	}

	info := TreeInfo{SHA: obj.SHA, Tree: make([]TreeEntryRequest, 0, len(tree.Entries))}
	for _, e := range tree.Entries {
		info.Tree = append(info.Tree, TreeEntryRequest{Path: e.Path, Mode: e.Mode, Type: e.Type, SHA: e.SHA})
	}
	return info, nil
}

func (s *ContentsService) GetCommit(ctx context.Context, sha string) (CommitInfo, error) {
	obj, err := s.object(ctx, sha, models.KindCommit)
	if err != nil {
		return CommitInfo{}, err
	}
	c, err := models.DecodeCommit(obj.Data)
	if err != nil {
		return CommitInfo{}, err
	}
	return commitInfo(sha, c), nil
}

func (s *ContentsService) CreateCommit(ctx context.Context, req CreateCommitRequest) (CommitInfo, error) {
	if req.Message == "" {
		return CommitInfo{}, unprocessable("message is required")
	}
	if _, err := s.object(ctx, req.Tree, models.KindTree); err != nil {
		return CommitInfo{}, unprocessable("Tree SHA does not exist")
	}
	for _, p := range req.Parents {
		if _, err := s.object(ctx, p, models.KindCommit); err != nil {
			return CommitInfo{}, unprocessable("Parent SHA does not exist or is not a commit object")
		}
	}

	c := models.Commit{
		Tree:      req.Tree,
		Parents:   append([]string(nil), req.Parents...),
		Message:   req.Message,
		Author:    s.author,
		Committed: s.clock.Now().UTC(),
	}
	data, err := c.Encode()
	if err != nil {
		return CommitInfo{}, err
	}
	obj := models.NewObject(models.KindCommit, data)
	if err := s.repo.PutObjects(ctx, obj); err != nil {
		return CommitInfo{}, fmt.Errorf("store commit: %w", err)
	}
	return commitInfo(obj.SHA, c), nil
}

// GetRef returns the head of branch.
func (s *ContentsService) GetRef(ctx context.Context, branch string) (Ref, error) {
	ref := models.BranchRef(branch)
	head, err := s.repo.GetHead(ctx, ref)
	if errors.Is(err, common.ErrObjectNotFound) {
		return Ref{}, notFound()
	}
	if err != nil {
		return Ref{}, err
	}
	return Ref{Ref: ref, Object: RefObject{SHA: head, Type: "commit"}}, nil
}

// UpdateRef points branch at sha. Unless force is set the new commit must
// descend from the current head, and the move is a compare-and-swap
// against the head that was checked, so a concurrent update makes this one
// fail as not a fast forward.
func (s *ContentsService) UpdateRef(ctx context.Context, branch string, req UpdateRefRequest) (Ref, error) {
	if _, err := s.object(ctx, req.SHA, models.KindCommit); err != nil {
		return Ref{}, unprocessable("Object does not exist")
	}

	for {
		cur, err := s.GetRef(ctx, branch)
		if err != nil {
			return Ref{}, err
		}
		head := cur.Object.SHA

		if !req.Force {
			ok, err := s.descends(ctx, req.SHA, head)
			if err != nil {
				return Ref{}, err
			}
			if !ok {
				return Ref{}, unprocessable("Update is not a fast forward")
			}
		}

		err = s.swapHead(ctx, branch, head, req.SHA)
		if errors.Is(err, common.ErrVersionConflict) {
			if req.Force {
				continue
			}
			return Ref{}, unprocessable("Update is not a fast forward")
		}
		if err != nil {
			return Ref{}, err
		}

		s.logger.Info(ctx, "ref updated", "branch", branch, "from", head, "to", req.SHA, "force", req.Force)
		return Ref{Ref: cur.Ref, Object: RefObject{SHA: req.SHA, Type: "commit"}}, nil
	}
}

// descends reports whether ancestor is reachable from commit through
// parent links. A commit descends from itself.
func (s *ContentsService) descends(ctx context.Context, commit, ancestor string) (bool, error) {
	queue := []string{commit}
	seen := map[string]bool{commit: true}
	for len(queue) > 0 && len(seen) <= maxAncestryWalk {
		sha := queue[0]
		queue = queue[1:]
		if sha == ancestor {
			return true, nil
		}
		obj, err := s.object(ctx, sha, models.KindCommit)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && se.Status == http.StatusNotFound {
				continue
			}
			return false, err
		}
		c, err := models.DecodeCommit(obj.Data)
		if err != nil {
			return false, err
		}
		for _, p := range c.Parents {
			if !seen[p] {
				seen[p] = true
				queue = append(queue, p)
			}
		}
	}
	return false, nil
}
