package models

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/docsync/internal/common"
)

// FieldState says what a change does to one field.
type FieldState uint8

const (
	// Unset leaves the field as it is.
	Unset FieldState = iota
	// Set overwrites the field with a value.
	Set
	// Clear removes the field's value.
	Clear
)

func (s FieldState) String() string {
	switch s {
	case Set:
		return "set"
	case Clear:
		return "clear"
	default:
		return "unset"
	}
}

// Field is a tagged optional value. The zero Field is Unset.
type Field[T any] struct {
	state FieldState
	value T
}

func SetTo[T any](v T) Field[T] { return Field[T]{state: Set, value: v} }

func Cleared[T any]() Field[T] { return Field[T]{state: Clear} }

func (f Field[T]) State() FieldState { return f.state }

// Value returns the value and true if f is Set.
func (f Field[T]) Value() (T, bool) { return f.value, f.state == Set }

func (f Field[T]) Touched() bool { return f.state != Unset }

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = Cleared[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = SetTo(v)
	return nil
}

// Changes is the set of field-level edits applied to a single record.
type Changes struct {
	Title           Field[string]
	Description     Field[string]
	Media           Field[[]Media]
	BackgroundImage Field[string]

	// MediaAppend adds media to whatever the record holds when the change
	// is applied. Entries already present (by url) are skipped.
	MediaAppend []Media
}

// Names lists the touched fields in a fixed order.
func (c Changes) Names() []string {
	var names []string
	if c.Title.Touched() {
		names = append(names, "title")
	}
	if c.Description.Touched() {
		names = append(names, "description")
	}
	if c.Media.Touched() {
		names = append(names, "media")
	}
	if len(c.MediaAppend) > 0 {
		names = append(names, "mediaAppend")
	}
	if c.BackgroundImage.Touched() {
		names = append(names, "backgroundImage")
	}
	return names
}

func (c Changes) Empty() bool { return len(c.Names()) == 0 }

// Validate checks c on its own, without looking at the target record.
// Every failure wraps common.ErrInvalidChange.
func (c Changes) Validate() error {
	var errs []error
	if c.Empty() {
		errs = append(errs, errors.New("no fields to change"))
	}
	if c.Title.State() == Clear {
		errs = append(errs, errors.New("title cannot be cleared"))
	}
	if c.Description.State() == Clear {
		errs = append(errs, errors.New("description cannot be cleared"))
	}
	if bg, ok := c.BackgroundImage.Value(); ok && bg == "" {
		errs = append(errs, errors.New("backgroundImage set to empty path, use clear"))
	}
	if media, ok := c.Media.Value(); ok {
		if len(media) > common.MaxMediaItems {
			errs = append(errs, fmt.Errorf("media has %d entries, at most %d allowed", len(media), common.MaxMediaItems))
		}
		errs = append(errs, validateMedia(media)...)
	}
	if c.Media.State() == Clear && len(c.MediaAppend) > 0 {
		errs = append(errs, errors.New("media cannot be cleared and appended in one change"))
	}
	errs = append(errs, validateMedia(c.MediaAppend)...)
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", common.ErrInvalidChange, errors.Join(errs...))
}

func validateMedia(media []Media) []error {
	var errs []error
	seen := map[string]bool{}
	for _, m := range media {
		if err := m.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[m.URL] {
			errs = append(errs, fmt.Errorf("media %q listed twice", m.URL))
		}
		seen[m.URL] = true
	}
	return errs
}

type changesJSON struct {
	Title           Field[string]  `json:"title"`
	Description     Field[string]  `json:"description"`
	Media           Field[[]Media] `json:"media"`
	BackgroundImage Field[string]  `json:"backgroundImage"`
	MediaAppend     []Media        `json:"mediaAppend"`
}

// UnmarshalJSON reads a change set where an absent key is Unset, null is
// Clear and any other value is Set.
func (c *Changes) UnmarshalJSON(data []byte) error {
	var v changesJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*c = Changes(v)
	return nil
}
