package model

import "strings"

// Attachment is a downloadable file referenced by a challenge.
type Attachment struct {
	// Filename is the sanitized name the file is stored under.
	Filename string `json:"filename"`
	// URL is the absolute download location.
	URL string `json:"url"`
}

// ChallengeRecord is the normalized view of one challenge.
type ChallengeRecord struct {
	// ID is the platform identifier, nil when the locator carried none.
	ID *int `json:"id,omitempty"`

	// Name is the raw challenge name reported by the platform API.
	// It is empty when the record was built from HTML only.
	Name string `json:"name,omitempty"`

	// Title is the display title, "[category] name" when the category is known.
	Title string `json:"title"`

	Category string `json:"category,omitempty"`
	Points   *int   `json:"points,omitempty"`

	// Description is plain text.
	Description string `json:"description"`

	Attachments []Attachment `json:"attachments"`

	// Source is the locator the record was extracted from.
	Source string `json:"source"`
}

// DisplayName returns the platform name when known, otherwise the title.
func (r ChallengeRecord) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Title
}

// TitleWithCategory prefixes name with "[category] " when category is set.
func TitleWithCategory(name, category string) string {
	if strings.TrimSpace(category) == "" {
		return name
	}
	return "[" + category + "] " + name
}

// DetailSource tells where the fields of a record came from.
type DetailSource int

const (
	// SourceHTML means the record was scraped from the challenge page.
	SourceHTML DetailSource = iota
	// SourceAPI means the record came from the per-challenge API payload.
	SourceAPI
)

// String returns the lowercase name of the source.
func (s DetailSource) String() string {
	switch s {
	case SourceHTML:
		return "html"
	case SourceAPI:
		return "api"
	default:
		return "unknown"
	}
}

// Extraction is the in-memory result of extracting one challenge,
// before anything is written to disk.
type Extraction struct {
	Record ChallengeRecord
	// Page is the raw body of the challenge page.
	Page   []byte
	Source DetailSource
}

// SavedFile describes one attachment written to disk.
type SavedFile struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Digest string `json:"digest"`
}

// Outcome is the result of persisting one extraction.
type Outcome struct {
	Record ChallengeRecord `json:"record"`

	// Dir is the absolute directory holding the challenge.
	Dir string `json:"dir"`

	// SavedFiles counts the attachments actually written.
	SavedFiles int `json:"saved_files"`

	Files []SavedFile `json:"files,omitempty"`
}
