// Package provenance defines the immutable record written once per watermark
// issuance and the contract used to persist and look it up.
package provenance

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// idBytes is the length of the random watermark id before hex encoding.
const idBytes = 16

// Record is one provenance row, immutable after Insert succeeds.
type Record struct {
	ID                   string         `json:"id" db:"id"`
	UserID               string         `json:"user_id" db:"user_id"`
	OriginalFilename     string         `json:"original_filename" db:"original_filename"`
	StoredFilename       string         `json:"stored_filename" db:"stored_filename"`
	MimeType             string         `json:"mime_type" db:"mime_type"`
	OriginalFileHash     string         `json:"original_file_hash" db:"original_file_hash"`
	WatermarkID          string         `json:"watermark_id" db:"watermark_id"`
	WatermarkCode        string         `json:"watermark_code" db:"watermark_code"`
	PerceptualHash       string         `json:"perceptual_hash,omitempty" db:"perceptual_hash"`
	PDFTextSimhash       string         `json:"pdf_text_simhash,omitempty" db:"pdf_text_simhash"`
	Metadata             map[string]any `json:"metadata" db:"metadata"`
	MetadataHash         string         `json:"metadata_hash" db:"metadata_hash"`
	PerPageHashes        []string       `json:"per_page_hashes,omitempty" db:"per_page_hashes"`
	SignedAt             *time.Time     `json:"signed_at,omitempty" db:"signed_at"`
	SignerCertThumbprint string         `json:"signer_cert_thumbprint,omitempty" db:"signer_cert_thumbprint"`
	IssuedAt             time.Time      `json:"issued_at" db:"issued_at"`
	SourceCreatedAt      *time.Time     `json:"source_created_at,omitempty" db:"source_created_at"`
	AlgoVersion          int            `json:"algo_version" db:"algo_version"`
}

// maxPerPageHashes is the invariant cap on Record.PerPageHashes.
const maxPerPageHashes = 10

var hexRunes = "0123456789abcdef"

// isLowerHex16 reports whether s is exactly 16 lowercase hex characters.
func isLowerHex16(s string) bool {
	if len(s) != 16 {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune(hexRunes, r) {
			return false
		}
	}
	return true
}

// Validate enforces the record invariants from the data model: per-page hash
// count and format, presence of the fields that must exist before a row is
// ever durably written.
func (r *Record) Validate() error {
	if r.WatermarkID == "" {
		return fmt.Errorf("watermark_id is required")
	}
	if r.WatermarkCode == "" {
		return fmt.Errorf("watermark_code is required")
	}
	if r.OriginalFileHash == "" {
		return fmt.Errorf("original_file_hash is required")
	}
	if len(r.PerPageHashes) > maxPerPageHashes {
		return fmt.Errorf("per_page_hashes exceeds maximum of %d entries", maxPerPageHashes)
	}
	for _, h := range r.PerPageHashes {
		if !isLowerHex16(h) {
			return fmt.Errorf("per_page_hashes entry %q is not 16 lowercase hex characters", h)
		}
	}
	expectedHash, err := CanonicalMetadataHash(r.Metadata)
	if err != nil {
		return fmt.Errorf("computing metadata hash: %w", err)
	}
	if r.MetadataHash != "" && r.MetadataHash != expectedHash {
		return fmt.Errorf("metadata_hash does not match canonical hash of metadata")
	}
	return nil
}

// NewWatermarkID mints a fresh, uniformly random 16-byte id, hex encoded.
func NewWatermarkID() (string, error) {
	buf := make([]byte, idBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating watermark id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// WatermarkCode derives the one-way, human-facing code from a hex watermark
// id: "WMK-" followed by the uppercased first 12 hex characters.
func WatermarkCode(idHex string) (string, error) {
	if len(idHex) < 12 {
		return "", fmt.Errorf("watermark id too short: %d hex characters", len(idHex))
	}
	return "WMK-" + strings.ToUpper(idHex[:12]), nil
}

// CanonicalMetadataHash computes SHA-256 over metadata serialized as JSON
// with sorted keys and no insignificant whitespace, so two records built from
// equal metadata always hash identically regardless of map iteration order.
func CanonicalMetadataHash(metadata map[string]any) (string, error) {
	canonical, err := canonicalJSON(metadata)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalJSON renders v as JSON with object keys sorted and no extraneous
// whitespace. encoding/json already sorts map[string]any keys and omits
// whitespace by default; this wrapper exists so the sort/no-whitespace
// contract is named and tested rather than relied upon implicitly.
func canonicalJSON(v any) ([]byte, error) {
	normalized, err := normalizeForCanonicalJSON(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(normalized)
}

// normalizeForCanonicalJSON round-trips v through JSON so nested structures
// (e.g. maps with non-string-keyed values from callers) land in the plain
// map[string]any/[]any/number/string/bool/nil shape json.Marshal already
// serializes deterministically.
func normalizeForCanonicalJSON(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("normalizing metadata: %w", err)
	}
	return out, nil
}
