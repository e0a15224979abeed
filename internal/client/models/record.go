// Package models defines the document records managed by docsync and the
// change sets applied to them.
//
// Records decoded from a document keep their original bytes. A record that
// is never edited is written back exactly as it was read, with its key order
// and any fields this package does not model; Edit returns a copy that is
// re-encoded from its fields on the next write.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// LastEditedLayout is the timestamp format of Record.LastEdited: UTC with
// millisecond precision and a Z suffix.
const LastEditedLayout = "2006-01-02T15:04:05.000Z"

// Record is one content item of the shared document.
type Record struct {
	ID          string
	Title       string
	Description string
	Media       []Media

	// BackgroundImage is nil when the record has no background image.
	BackgroundImage *string

	LastEdited string

	// Extra holds keys this type does not model (source, datetime, ...).
	Extra map[string]json.RawMessage

	// idKey is the key the identity was read from: "id", or "hash" in
	// documents written by the import pipeline.
	idKey string
	keys  []string
	raw   json.RawMessage
}

var recordKeys = []string{"id", "title", "description", "media", "backgroundImage", "lastEdited"}

// FormatLastEdited renders t in LastEditedLayout.
func FormatLastEdited(t time.Time) string {
	return t.UTC().Format(LastEditedLayout)
}

// Edit returns a deep copy of r that is encoded from its fields rather than
// from the bytes it was decoded from.
func (r Record) Edit() Record {
	out := r.Clone()
	out.raw = nil
	return out
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := r
	if r.Media != nil {
		out.Media = make([]Media, len(r.Media))
		copy(out.Media, r.Media)
	}
	if r.BackgroundImage != nil {
		bg := *r.BackgroundImage
		out.BackgroundImage = &bg
	}
	out.Extra = cloneRaw(r.Extra)
	if r.keys != nil {
		out.keys = append([]string(nil), r.keys...)
	}
	if r.raw != nil {
		out.raw = append(json.RawMessage(nil), r.raw...)
	}
	return out
}

// ClearBackgroundImage removes the background image, key included. Setting
// BackgroundImage to nil directly keeps a stored null as it was.
func (r *Record) ClearBackgroundImage() {
	r.BackgroundImage = nil
	if i := indexOf(r.keys, "backgroundImage"); i >= 0 {
		r.keys = append(r.keys[:i:i], r.keys[i+1:]...)
	}
}

// Pristine reports whether r still carries the bytes it was decoded from.
func (r Record) Pristine() bool { return r.raw != nil }

func (r Record) MarshalJSON() ([]byte, error) {
	if r.raw != nil {
		return r.raw, nil
	}
	fields := cloneRaw(r.Extra)
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	put := func(k string, v any) error {
		b, err := marshal(v)
		if err != nil {
			return fmt.Errorf("record %q field %q: %w", r.ID, k, err)
		}
		fields[k] = b
		return nil
	}
	idKey := r.idKey
	if idKey == "" {
		idKey = "id"
	}
	if err := put(idKey, r.ID); err != nil {
		return nil, err
	}
	if r.keeps("title") || r.Title != "" {
		if err := put("title", r.Title); err != nil {
			return nil, err
		}
	}
	if r.keeps("description") || r.Description != "" {
		if err := put("description", r.Description); err != nil {
			return nil, err
		}
	}
	if r.Media != nil || contains(r.keys, "media") {
		if err := put("media", r.Media); err != nil {
			return nil, err
		}
	}
	switch {
	case r.BackgroundImage != nil:
		if err := put("backgroundImage", *r.BackgroundImage); err != nil {
			return nil, err
		}
	case contains(r.keys, "backgroundImage"):
		fields["backgroundImage"] = json.RawMessage("null")
	default:
		delete(fields, "backgroundImage")
	}
	if r.LastEdited != "" {
		if err := put("lastEdited", r.LastEdited); err != nil {
			return nil, err
		}
	}
	order := r.keys
	if order == nil {
		order = recordKeys
	}
	return encodeObject(order, fields)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	obj, err := decodeObject(data)
	if err != nil {
		return err
	}
	_, hasID := obj.fields["id"]

	var out Record
	for _, k := range obj.keys {
		v := obj.fields[k]
		var err error
		switch k {
		case "id":
			err = json.Unmarshal(v, &out.ID)
			out.idKey = k
		case "hash":
			if hasID {
				out.setExtra(k, v)
				continue
			}
			err = json.Unmarshal(v, &out.ID)
			out.idKey = k
		case "title":
			err = json.Unmarshal(v, &out.Title)
		case "description":
			err = json.Unmarshal(v, &out.Description)
		case "media":
			err = json.Unmarshal(v, &out.Media)
		case "backgroundImage":
			var bg *string
			if err = json.Unmarshal(v, &bg); err == nil {
				out.BackgroundImage = bg
			}
		case "lastEdited":
			var s *string
			if err = json.Unmarshal(v, &s); err == nil && s != nil {
				out.LastEdited = *s
			}
		default:
			out.setExtra(k, v)
		}
		if err != nil {
			return fmt.Errorf("record field %q: %w", k, err)
		}
	}
	out.keys = obj.keys
	out.raw = append(json.RawMessage(nil), data...)
	*r = out
	return nil
}

func (r *Record) setExtra(k string, v json.RawMessage) {
	if r.Extra == nil {
		r.Extra = map[string]json.RawMessage{}
	}
	r.Extra[k] = v
}

// keeps reports whether k belongs in the encoding of r: always for a record
// built in memory, otherwise only when it was present in the source.
func (r Record) keeps(k string) bool {
	return r.keys == nil || contains(r.keys, k)
}

// MediaURLs returns the url of every media reference of r, in order.
func (r Record) MediaURLs() []string {
	urls := make([]string, 0, len(r.Media))
	for _, m := range r.Media {
		urls = append(urls, m.URL)
	}
	return urls
}
