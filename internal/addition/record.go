// Package addition defines the registry addition record shared between peers,
// plus the set operations the federation engine applies to lists of them.
package addition

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"

	"registry-federation/internal/canon"
)

// Field names as they appear on the wire.
const (
	FieldType = "type"
	FieldURI  = "uri"
	FieldID   = "ID"
)

// Record is one addition entry. Fields beyond type, uri and ID are carried
// verbatim; records are treated as immutable once decoded.
type Record map[string]any

// New builds a record whose ID is derived from uri.
func New(typ, uri string) Record {
	return Record{
		FieldType: typ,
		FieldURI:  uri,
		FieldID:   HashURI(uri),
	}
}

// HashURI returns the stable identifier for a URI: the hex md5 of its bytes.
// Peer entries and records share this derivation.
func HashURI(uri string) string {
	sum := md5.Sum([]byte(uri))
	return hex.EncodeToString(sum[:])
}

func (r Record) str(field string) string {
	s, _ := r[field].(string)
	return s
}

// Type returns the record's type tag, or "" when absent or not a string.
func (r Record) Type() string { return r.str(FieldType) }

// URI returns the record's canonical origin.
func (r Record) URI() string { return r.str(FieldURI) }

// ID returns the record's content hash.
func (r Record) ID() string { return r.str(FieldID) }

// WithID returns r unchanged when it already carries an ID, otherwise a copy
// with ID derived from its uri. Records without a uri are returned as-is.
func (r Record) WithID() Record {
	if r.ID() != "" || r.URI() == "" {
		return r
	}
	out := maps.Clone(r)
	out[FieldID] = HashURI(r.URI())
	return out
}

// Key returns the canonical form of r. Structurally equal records have equal keys.
func (r Record) Key() (string, error) {
	b, err := canon.Marshal(map[string]any(r))
	if err != nil {
		return "", fmt.Errorf("canonicalizing record: %w", err)
	}
	return string(b), nil
}

// Decode parses a JSON array of objects. A JSON null decodes to an empty list.
func Decode(data []byte) ([]Record, error) {
	var out []Record
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding records: %w", err)
	}
	if out == nil {
		out = []Record{}
	}
	return out, nil
}

// Encode writes records as a JSON array; nil encodes as [].
func Encode(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	b, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encoding records: %w", err)
	}
	return b, nil
}
