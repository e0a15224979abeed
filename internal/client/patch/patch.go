// Package patch computes new document versions from a change to one record.
// It never mutates its input: on success it returns a fresh slice in which
// only the target element differs, on failure it returns nil.
package patch

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/docsync/internal/client/models"
	"github.com/dmitrijs2005/docsync/internal/common"
)

// Index returns the position of the record with the given id, or -1.
func Index(records []models.Record, id string) int {
	for i := range records {
		if records[i].ID == id {
			return i
		}
	}
	return -1
}

// ApplyPatch replaces the record with id targetID by the shallow merge of
// that record and changes, stamping lastEdited with now. Fields that
// changes leaves Unset are carried over as they are.
func ApplyPatch(records []models.Record, targetID string, changes models.Changes, now time.Time) ([]models.Record, error) {
	if targetID == "" {
		return nil, fmt.Errorf("%w: empty record id", common.ErrInvalidChange)
	}
	if err := changes.Validate(); err != nil {
		return nil, err
	}
	idx := Index(records, targetID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, targetID)
	}

	merged, err := merge(records[idx], changes)
	if err != nil {
		return nil, err
	}
	if merged.ID != targetID {
		return nil, &common.IntegrityError{Check: "identity", RecordID: targetID, Detail: fmt.Sprintf("merged record has id %q", merged.ID)}
	}
	merged.LastEdited = models.FormatLastEdited(now)

	out := make([]models.Record, len(records))
	copy(out, records)
	out[idx] = merged
	return out, nil
}

func merge(old models.Record, c models.Changes) (models.Record, error) {
	r := old.Edit()

	if v, ok := c.Title.Value(); ok {
		r.Title = v
	}
	if v, ok := c.Description.Value(); ok {
		r.Description = v
	}

	switch c.Media.State() {
	case models.Set:
		v, _ := c.Media.Value()
		r.Media = append([]models.Media{}, v...)
	case models.Clear:
		r.Media = []models.Media{}
	}
	if len(c.MediaAppend) > 0 {
		r.Media = appendMedia(r.Media, c.MediaAppend)
	}
	if c.Media.Touched() || len(c.MediaAppend) > 0 {
		if len(r.Media) > common.MaxMediaItems {
			return models.Record{}, fmt.Errorf("%w: record %s would hold %d media, at most %d allowed",
				common.ErrInvalidChange, old.ID, len(r.Media), common.MaxMediaItems)
		}
	}

	switch c.BackgroundImage.State() {
	case models.Set:
		v, _ := c.BackgroundImage.Value()
		if !references(r.Media, v) {
			return models.Record{}, fmt.Errorf("%w: backgroundImage %q is not one of the media of %s",
				common.ErrInvalidChange, v, old.ID)
		}
		r.BackgroundImage = &v
	case models.Clear:
		r.ClearBackgroundImage()
	}
	return r, nil
}

// appendMedia adds every item of add whose url is not already present.
func appendMedia(media, add []models.Media) []models.Media {
	out := append([]models.Media{}, media...)
	for _, m := range add {
		if !hasURL(out, m.URL) {
			out = append(out, m)
		}
	}
	return out
}

func hasURL(media []models.Media, url string) bool {
	for _, m := range media {
		if m.URL == url {
			return true
		}
	}
	return false
}

func references(media []models.Media, path string) bool {
	for _, m := range media {
		if m.URL == path || (m.Thumb != "" && m.Thumb == path) {
			return true
		}
	}
	return false
}

// ApplyDelete removes the record with id targetID, keeping the order of the
// others.
func ApplyDelete(records []models.Record, targetID string) ([]models.Record, error) {
	if targetID == "" {
		return nil, fmt.Errorf("%w: empty record id", common.ErrInvalidChange)
	}
	idx := Index(records, targetID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, targetID)
	}
	out := make([]models.Record, 0, len(records)-1)
	out = append(out, records[:idx]...)
	out = append(out, records[idx+1:]...)
	return out, nil
}
