// Package integrity checks a computed document version before it is
// written. A failed check means the read-modify-write cycle produced
// something other than what was asked for; the version must not be written.
package integrity

import (
	"fmt"

	"github.com/dmitrijs2005/docsync/internal/client/models"
	"github.com/dmitrijs2005/docsync/internal/codec"
	"github.com/dmitrijs2005/docsync/internal/common"
)

// Kind is the operation that produced the new version.
type Kind int

const (
	Patch Kind = iota
	Delete
)

func (k Kind) String() string {
	if k == Delete {
		return "delete"
	}
	return "patch"
}

// Expectation describes the operation being verified.
type Expectation struct {
	Kind     Kind
	TargetID string
	// Changes is only consulted for Patch.
	Changes models.Changes
}

// Check names, as reported in common.IntegrityError.Check.
const (
	CheckUnique   = "unique_ids"
	CheckCount    = "count"
	CheckOrder    = "order"
	CheckEcho     = "echo"
	CheckEncoding = "encoding"
)

// Verify checks after against before for the operation exp: ids are
// unique, the record count moved by the expected delta, the other records
// kept their ids and order, and every requested field reads back as
// requested. It also refuses text changes that carry double-encoded UTF-8.
func Verify(before, after []models.Record, exp Expectation) error {
	if exp.Kind == Patch {
		if err := checkEncoding(exp); err != nil {
			return err
		}
	}
	if err := checkUnique(after); err != nil {
		return err
	}

	want := len(before)
	if exp.Kind == Delete {
		want--
	}
	if len(after) != want {
		return &common.IntegrityError{Check: CheckCount, RecordID: exp.TargetID,
			Detail: fmt.Sprintf("%s turned %d records into %d, want %d", exp.Kind, len(before), len(after), want)}
	}

	j := 0
	for _, r := range before {
		if exp.Kind == Delete && r.ID == exp.TargetID {
			continue
		}
		if after[j].ID != r.ID {
			return &common.IntegrityError{Check: CheckOrder, RecordID: r.ID,
				Detail: fmt.Sprintf("position %d holds %q", j, after[j].ID)}
		}
		j++
	}

	if exp.Kind == Delete {
		return nil
	}
	return VerifyEcho(after, exp)
}

// VerifyEcho checks that after holds exp.TargetID exactly once with every
// field named in exp.Changes equal to its requested value. For Delete it
// checks that the target is gone.
func VerifyEcho(after []models.Record, exp Expectation) error {
	var found []models.Record
	for _, r := range after {
		if r.ID == exp.TargetID {
			found = append(found, r)
		}
	}
	if exp.Kind == Delete {
		if len(found) > 0 {
			return &common.IntegrityError{Check: CheckEcho, RecordID: exp.TargetID, Detail: "deleted record is still present"}
		}
		return nil
	}
	if len(found) != 1 {
		return &common.IntegrityError{Check: CheckEcho, RecordID: exp.TargetID, Detail: fmt.Sprintf("record found %d times", len(found))}
	}
	r := found[0]
	c := exp.Changes
	fail := func(field string, got, want any) error {
		return &common.IntegrityError{Check: CheckEcho, RecordID: exp.TargetID,
			Detail: fmt.Sprintf("%s is %v, requested %v", field, got, want)}
	}

	if v, ok := c.Title.Value(); ok && r.Title != v {
		return fail("title", r.Title, v)
	}
	if v, ok := c.Description.Value(); ok && r.Description != v {
		return fail("description", r.Description, v)
	}
	switch c.Media.State() {
	case models.Set:
		v, _ := c.Media.Value()
		if !mediaPrefix(r.Media, v) || (len(c.MediaAppend) == 0 && len(r.Media) != len(v)) {
			return fail("media", r.MediaURLs(), urls(v))
		}
	case models.Clear:
		if len(r.Media) > len(c.MediaAppend) {
			return fail("media", r.MediaURLs(), "cleared")
		}
	}
	for _, m := range c.MediaAppend {
		if !containsMedia(r.Media, m) {
			return fail("media", r.MediaURLs(), "to include "+m.URL)
		}
	}
	switch c.BackgroundImage.State() {
	case models.Set:
		v, _ := c.BackgroundImage.Value()
		if r.BackgroundImage == nil || *r.BackgroundImage != v {
			return fail("backgroundImage", deref(r.BackgroundImage), v)
		}
	case models.Clear:
		if r.BackgroundImage != nil {
			return fail("backgroundImage", *r.BackgroundImage, "absent")
		}
	}
	return nil
}

func checkUnique(records []models.Record) error {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, dup := seen[r.ID]; dup {
			return &common.IntegrityError{Check: CheckUnique, RecordID: r.ID, Detail: "id appears more than once"}
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}

func checkEncoding(exp Expectation) error {
	fields := map[string]models.Field[string]{
		"title":       exp.Changes.Title,
		"description": exp.Changes.Description,
	}
	for _, name := range []string{"title", "description"} {
		if v, ok := fields[name].Value(); ok && codec.Signatures(v) > 0 {
			return &common.IntegrityError{Check: CheckEncoding, RecordID: exp.TargetID,
				Detail: fmt.Sprintf("%s contains double-encoded UTF-8 (%s)", name, codec.CorruptionLevel(v))}
		}
	}
	return nil
}

// mediaPrefix reports whether got starts with want, item by item. Appended
// media may follow.
func mediaPrefix(got, want []models.Media) bool {
	if len(got) < len(want) {
		return false
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			return false
		}
	}
	return true
}

func containsMedia(media []models.Media, m models.Media) bool {
	for _, x := range media {
		if x.URL == m.URL {
			return true
		}
	}
	return false
}

func urls(media []models.Media) []string {
	out := make([]string, 0, len(media))
	for _, m := range media {
		out = append(out, m.URL)
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return "absent"
	}
	return *s
}
