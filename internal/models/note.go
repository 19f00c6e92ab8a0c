// Package models defines the domain types for Commonplace.
package models

import "time"

// Note is one parsed Markdown file in the vault. ID lives in the
// front-matter, not in the path, so it survives renames.
type Note struct {
	ID         string         `json:"id"`
	Module     string         `json:"module"`
	Path       string         `json:"path"`
	Title      string         `json:"title,omitempty"`
	Body       string         `json:"body"`
	Properties []Property     `json:"properties,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Checksum   string         `json:"checksum"`
	Created    time.Time      `json:"created"`
	Modified   time.Time      `json:"modified"`

	// FrontLinks carries the raw front-matter links: declarations for the
	// link resolver. Not serialized; the links table is authoritative.
	FrontLinks []any `json:"-"`
}

// Property returns the declared property with the given name.
func (n Note) Property(name string) (Property, bool) {
	for _, p := range n.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// NoteMetadata is a lightweight representation returned by vault listings.
type NoteMetadata struct {
	Path     string    `json:"path"`
	Checksum string    `json:"checksum"`
	ModTime  time.Time `json:"mod_time"`
}

// Link is a directed edge in the note graph. TargetID is empty while the
// target reference has no matching note in the index.
type Link struct {
	SourceID  string `json:"source"`
	TargetRef string `json:"target_ref"`
	TargetID  string `json:"target,omitempty"`
	Type      string `json:"type"`
	Position  int    `json:"-"`
}

// Resolved reports whether the link points at an indexed note.
func (l Link) Resolved() bool { return l.TargetID != "" }

// LinkTypeReference is the type assigned to inline [[...]] body references.
const LinkTypeReference = "reference"
