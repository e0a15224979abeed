// Package models defines the git-like objects persisted by the document
// store: content-addressed blobs, trees and commits, and named refs.
package models

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// ObjectKind is the type of a stored object.
type ObjectKind string

const (
	KindBlob   ObjectKind = "blob"
	KindTree   ObjectKind = "tree"
	KindCommit ObjectKind = "commit"
)

func (k ObjectKind) Valid() bool {
	switch k {
	case KindBlob, KindTree, KindCommit:
		return true
	}
	return false
}

// Object is an immutable, content-addressed value.
type Object struct {
	// SHA is the sha1 of "<kind> <len>\x00<data>", as git computes it.
	SHA  string
	Kind ObjectKind
	Data []byte
}

// NewObject hashes data as an object of kind.
func NewObject(kind ObjectKind, data []byte) Object {
	return Object{SHA: HashObject(kind, data), Kind: kind, Data: data}
}

func HashObject(kind ObjectKind, data []byte) string {
	h := sha1.New()
	h.Write([]byte(string(kind) + " " + strconv.Itoa(len(data)) + "\x00"))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TreeEntry maps one path to a blob. Trees are flat: Path is the full
// slash-separated path from the repository root.
type TreeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

type Tree struct {
	Entries []TreeEntry `json:"tree"`
}

// Encode returns the canonical tree encoding, entries sorted by path.
func (t Tree) Encode() ([]byte, error) {
	entries := append([]TreeEntry(nil), t.Entries...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return json.Marshal(Tree{Entries: entries})
}

func DecodeTree(data []byte) (Tree, error) {
	var t Tree
	if err := json.Unmarshal(data, &t); err != nil {
		return Tree{}, fmt.Errorf("decode tree: %w", err)
	}
	return t, nil
}

// Lookup returns the entry for path.
func (t Tree) Lookup(path string) (TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Path == path {
			return e, true
		}
	}
	return TreeEntry{}, false
}

// With returns a copy of t where every entry of changes replaces the entry
// with the same path, or is added.
func (t Tree) With(changes ...TreeEntry) Tree {
	byPath := make(map[string]TreeEntry, len(t.Entries)+len(changes))
	for _, e := range t.Entries {
		byPath[e.Path] = e
	}
	for _, e := range changes {
		byPath[e.Path] = e
	}
	out := Tree{Entries: make([]TreeEntry, 0, len(byPath))}
	for _, e := range byPath {
		out.Entries = append(out.Entries, e)
	}
	sort.Slice(out.Entries, func(i, j int) bool { return out.Entries[i].Path < out.Entries[j].Path })
	return out
}

type Commit struct {
	Tree      string    `json:"tree"`
	Parents   []string  `json:"parents"`
	Message   string    `json:"message"`
	Author    string    `json:"author,omitempty"`
	Committed time.Time `json:"committed"`
}

func (c Commit) Encode() ([]byte, error) {
	if c.Parents == nil {
		c.Parents = []string{}
	}
	return json.Marshal(c)
}

func DecodeCommit(data []byte) (Commit, error) {
	var c Commit
	if err := json.Unmarshal(data, &c); err != nil {
		return Commit{}, fmt.Errorf("decode commit: %w", err)
	}
	return c, nil
}

// BranchRef is the ref name of branch.
func BranchRef(branch string) string {
	return "refs/heads/" + branch
}
