package models

import "jobpilot/driver"

// JobHandle references one discovered listing. It is only valid within the
// discovery pass that produced it: Element is bound to the listing page and
// goes stale once that page navigates away.
type JobHandle struct {
	Index   int            `json:"index"`
	Title   string         `json:"title"`
	URL     string         `json:"url,omitempty"`
	PassID  string         `json:"pass_id"`
	Element driver.Element `json:"-"`
}

// Navigable reports whether the handle can be opened by URL instead of by
// clicking its element.
func (h JobHandle) Navigable() bool {
	return h.URL != ""
}

// FieldKind classifies a form control discovered at runtime.
type FieldKind string

const (
	FieldText         FieldKind = "text"
	FieldCheckbox     FieldKind = "checkbox"
	FieldSingleSelect FieldKind = "single-select"
	FieldMultiSelect  FieldKind = "multi-select"
	FieldCustomMenu   FieldKind = "custom-menu"
	FieldFile         FieldKind = "file"
)

// FieldDescriptor is the metadata of one form control, built fresh for every
// page visited and never persisted.
type FieldDescriptor struct {
	Kind     FieldKind      `json:"kind"`
	Required bool           `json:"required"`
	Label    string         `json:"label"`
	Value    string         `json:"value,omitempty"`
	Options  []string       `json:"options,omitempty"`
	Element  driver.Element `json:"-"`
}

// SelectLike reports whether the field is answered by picking an option.
func (f FieldDescriptor) SelectLike() bool {
	switch f.Kind {
	case FieldSingleSelect, FieldMultiSelect, FieldCustomMenu:
		return true
	}
	return false
}
