package peers

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"

	"registry-federation/internal/addition"
)

var (
	// ErrInvalidURI is returned for empty or non-http(s) peer URIs.
	ErrInvalidURI = errors.New("invalid peer uri")
	// ErrInvalidRelationship is returned for relationship names other than Federated/Defederated.
	ErrInvalidRelationship = errors.New("invalid peer relationship")
	// ErrDuplicatePeer is returned when a peer with the same ID is already registered.
	ErrDuplicatePeer = errors.New("peer already registered")
	// ErrPeerNotFound is returned when no peer matches an ID.
	ErrPeerNotFound = errors.New("peer not found")
)

// Relationship says how a peer's records are consumed downstream. Both kinds
// are fetched the same way.
type Relationship string

const (
	// Federated peers contribute records to merge in.
	Federated Relationship = "Federated"
	// Defederated peers contribute records meant for exclusion.
	Defederated Relationship = "Defederated"
)

// ParseRelationship accepts exactly "Federated" or "Defederated".
func ParseRelationship(s string) (Relationship, error) {
	switch r := Relationship(strings.TrimSpace(s)); r {
	case Federated, Defederated:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRelationship, s)
	}
}

// Peer is one configured remote registry.
type Peer struct {
	URI  string       `json:"uri" toml:"uri"`
	Type Relationship `json:"type" toml:"type"`
	ID   string       `json:"ID" toml:"-"`
}

// New validates uri and rel and derives the peer ID.
func New(uri string, rel Relationship) (Peer, error) {
	normalized, err := NormalizeURI(uri)
	if err != nil {
		return Peer{}, err
	}
	parsed, err := ParseRelationship(string(rel))
	if err != nil {
		return Peer{}, err
	}
	return Peer{
		URI:  normalized,
		Type: parsed,
		ID:   addition.HashURI(normalized),
	}, nil
}

// NormalizeURI trims whitespace and trailing slashes and NFC-normalizes the
// result. Only absolute http and https URIs are accepted.
func NormalizeURI(raw string) (string, error) {
	s := norm.NFC.String(strings.TrimSpace(raw))
	s = strings.TrimRight(s, "/")
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURI)
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q is not an absolute http(s) uri", ErrInvalidURI, raw)
	}
	return s, nil
}
