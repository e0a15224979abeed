package models

import (
	"encoding/json"
	"fmt"
)

// MediaType classifies a media reference.
type MediaType string

const (
	MediaTypeImage   MediaType = "image"
	MediaTypeVideo   MediaType = "video"
	MediaTypeAudio   MediaType = "audio"
	MediaTypeGeneric MediaType = "generic"
)

func (t MediaType) Valid() bool {
	switch t {
	case MediaTypeImage, MediaTypeVideo, MediaTypeAudio, MediaTypeGeneric:
		return true
	}
	return false
}

// Media is a reference to one uploaded resource owned by a record.
type Media struct {
	Type  MediaType
	URL   string
	Thumb string
	Name  string
	Size  int64

	// Extra holds keys this type does not model.
	Extra map[string]json.RawMessage

	keys []string
	raw  json.RawMessage
}

var mediaKeys = []string{"type", "url", "thumb", "name", "size"}

func (m Media) Validate() error {
	if !m.Type.Valid() {
		return fmt.Errorf("media %q: unknown type %q", m.URL, m.Type)
	}
	if m.URL == "" {
		return fmt.Errorf("media of type %q has no url", m.Type)
	}
	if m.Size < 0 {
		return fmt.Errorf("media %q: negative size", m.URL)
	}
	return nil
}

// Equal reports whether m and o describe the same resource with the same
// attributes.
func (m Media) Equal(o Media) bool {
	if m.Type != o.Type || m.URL != o.URL || m.Thumb != o.Thumb || m.Name != o.Name || m.Size != o.Size {
		return false
	}
	if len(m.Extra) != len(o.Extra) {
		return false
	}
	for k, v := range m.Extra {
		if w, ok := o.Extra[k]; !ok || string(v) != string(w) {
			return false
		}
	}
	return true
}

func (m Media) MarshalJSON() ([]byte, error) {
	if m.raw != nil {
		return m.raw, nil
	}
	fields := cloneRaw(m.Extra)
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	put := func(k string, v any) error {
		b, err := marshal(v)
		if err != nil {
			return err
		}
		fields[k] = b
		return nil
	}
	if err := put("type", m.Type); err != nil {
		return nil, err
	}
	if err := put("url", m.URL); err != nil {
		return nil, err
	}
	if m.Thumb != "" || contains(m.keys, "thumb") {
		if err := put("thumb", m.Thumb); err != nil {
			return nil, err
		}
	}
	if m.Name != "" || contains(m.keys, "name") {
		if err := put("name", m.Name); err != nil {
			return nil, err
		}
	}
	if m.Size != 0 || contains(m.keys, "size") {
		if err := put("size", m.Size); err != nil {
			return nil, err
		}
	}
	order := m.keys
	if order == nil {
		order = mediaKeys
	}
	return encodeObject(order, fields)
}

func (m *Media) UnmarshalJSON(data []byte) error {
	obj, err := decodeObject(data)
	if err != nil {
		return fmt.Errorf("media: %w", err)
	}
	var out Media
	for _, k := range obj.keys {
		v := obj.fields[k]
		var err error
		switch k {
		case "type":
			err = json.Unmarshal(v, &out.Type)
		case "url":
			err = json.Unmarshal(v, &out.URL)
		case "thumb":
			err = json.Unmarshal(v, &out.Thumb)
		case "name":
			err = json.Unmarshal(v, &out.Name)
		case "size":
			var n json.Number
			if err = json.Unmarshal(v, &n); err == nil && n != "" {
				out.Size, err = n.Int64()
			}
		default:
			if out.Extra == nil {
				out.Extra = map[string]json.RawMessage{}
			}
			out.Extra[k] = v
		}
		if err != nil {
			return fmt.Errorf("media field %q: %w", k, err)
		}
	}
	out.keys = obj.keys
	out.raw = append(json.RawMessage(nil), data...)
	*m = out
	return nil
}
