package record

import (
	"encoding/json"
	"fmt"
)

// MetadataVersion is the version written by MarshalJSON.
const MetadataVersion = 1

// MetadataKind tags which shape a Metadata value carries.
type MetadataKind string

// MetadataKind values.
const (
	MetadataNone     MetadataKind = ""
	MetadataCodeSpan MetadataKind = "code_span"
	MetadataDocument MetadataKind = "document"
)

// CodeSpan locates a chunk inside a source file.
type CodeSpan struct {
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	Language   string `json:"language,omitempty"`
	EntityType string `json:"entity_type,omitempty"`
}

// DocumentSection locates a chunk inside prose documentation.
type DocumentSection struct {
	Title   string `json:"title,omitempty"`
	Section string `json:"section,omitempty"`
}

// Metadata is the structured, versioned side information of a record.
// Fields it does not model survive round trips through Extra.
type Metadata struct {
	kind     MetadataKind
	span     CodeSpan
	document DocumentSection
	extra    map[string]any
}

// NewMetadata returns empty metadata.
func NewMetadata() Metadata {
	return Metadata{}
}

// CodeSpanMetadata returns metadata describing a code span.
func CodeSpanMetadata(span CodeSpan) Metadata {
	return Metadata{kind: MetadataCodeSpan, span: span}
}

// DocumentMetadata returns metadata describing a documentation section.
func DocumentMetadata(doc DocumentSection) Metadata {
	return Metadata{kind: MetadataDocument, document: doc}
}

// Kind returns the shape tag.
func (m Metadata) Kind() MetadataKind { return m.kind }

// Span returns the code span when Kind is MetadataCodeSpan.
func (m Metadata) Span() (CodeSpan, bool) {
	return m.span, m.kind == MetadataCodeSpan
}

// Document returns the section when Kind is MetadataDocument.
func (m Metadata) Document() (DocumentSection, bool) {
	return m.document, m.kind == MetadataDocument
}

// Extra returns a copy of the fields not modelled by any shape.
func (m Metadata) Extra() map[string]any {
	out := make(map[string]any, len(m.extra))
	for k, v := range m.extra {
		out[k] = v
	}
	return out
}

// WithExtra returns a copy carrying an additional free-form field.
func (m Metadata) WithExtra(key string, value any) Metadata {
	extra := m.Extra()
	extra[key] = value
	m.extra = extra
	return m
}

type metadataJSON struct {
	Version  int              `json:"version"`
	Kind     MetadataKind     `json:"kind,omitempty"`
	Span     *CodeSpan        `json:"span,omitempty"`
	Document *DocumentSection `json:"document,omitempty"`
	Extra    map[string]any   `json:"extra,omitempty"`
}

// MarshalJSON writes the current version.
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := metadataJSON{Version: MetadataVersion, Kind: m.kind, Extra: m.extra}
	switch m.kind {
	case MetadataCodeSpan:
		span := m.span
		out.Span = &span
	case MetadataDocument:
		doc := m.document
		out.Document = &doc
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads any known version. Payloads without a version are
// flat legacy objects; recognised line-range keys become a code span and
// everything else lands in Extra.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	if raw == nil {
		*m = Metadata{}
		return nil
	}

	if _, versioned := raw["version"]; !versioned {
		return m.decodeLegacy(raw)
	}

	var doc metadataJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode metadata v%d: %w", doc.Version, err)
	}

	decoded := Metadata{kind: doc.Kind, extra: doc.Extra}
	switch doc.Kind {
	case MetadataCodeSpan:
		if doc.Span != nil {
			decoded.span = *doc.Span
		}
	case MetadataDocument:
		if doc.Document != nil {
			decoded.document = *doc.Document
		}
	case MetadataNone:
	default:
		// Unknown shapes degrade to plain metadata that remembers the tag.
		decoded.kind = MetadataNone
		decoded = decoded.WithExtra("unknown_kind", string(doc.Kind))
	}

	if doc.Version > MetadataVersion {
		for k, v := range raw {
			switch k {
			case "version", "kind", "span", "document", "extra":
				continue
			}
			var value any
			if err := json.Unmarshal(v, &value); err == nil {
				decoded = decoded.WithExtra(k, value)
			}
		}
	}

	*m = decoded
	return nil
}

func (m *Metadata) decodeLegacy(raw map[string]json.RawMessage) error {
	decoded := Metadata{}
	_, hasStart := raw["start_line"]
	_, hasEnd := raw["end_line"]
	if hasStart && hasEnd {
		var span CodeSpan
		b, _ := json.Marshal(raw)
		if err := json.Unmarshal(b, &span); err != nil {
			return fmt.Errorf("decode legacy span: %w", err)
		}
		decoded.kind = MetadataCodeSpan
		decoded.span = span
	}

	for k, v := range raw {
		if decoded.kind == MetadataCodeSpan {
			switch k {
			case "start_line", "end_line", "language", "entity_type":
				continue
			}
		}
		var value any
		if err := json.Unmarshal(v, &value); err != nil {
			return fmt.Errorf("decode legacy field %s: %w", k, err)
		}
		decoded = decoded.WithExtra(k, value)
	}

	*m = decoded
	return nil
}
