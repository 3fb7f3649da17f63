// Package watermark implements the DCT/QIM image watermark: payload
// encoding, block-level embedding, region selection, and the embed/extract
// orchestration described in the provenance data model.
package watermark

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Payload layout: version(1) || id(16) || tag(16) = 33 bytes pre-ECC.
const (
	versionLegacy  = 1
	versionCurrent = 2

	idSize      = 16
	tagSize     = 16
	payloadSize = 1 + idSize + tagSize
)

// ErrInvalidSignature is returned when a payload's length, version, or HMAC
// tag fails validation.
type ErrInvalidSignature struct {
	Reason string
}

func (e *ErrInvalidSignature) Error() string {
	return fmt.Sprintf("invalid watermark signature: %s", e.Reason)
}

// PackPayload builds the 33-byte pre-ECC payload for idHex under secret,
// always at the current version.
func PackPayload(idHex string, secret string) ([]byte, error) {
	id, err := hex.DecodeString(idHex)
	if err != nil {
		return nil, fmt.Errorf("decoding watermark id: %w", err)
	}
	if len(id) != idSize {
		return nil, fmt.Errorf("watermark id must decode to %d bytes, got %d", idSize, len(id))
	}

	header := make([]byte, 1+idSize)
	header[0] = versionCurrent
	copy(header[1:], id)

	tag := hmacTag(header, secret)

	payload := make([]byte, 0, payloadSize)
	payload = append(payload, header...)
	payload = append(payload, tag...)
	return payload, nil
}

// UnpackPayload validates and decodes a 33-byte payload, returning the
// watermark id (hex); WatermarkCode derives the code from it. Accepts both the legacy (v1) and
// current (v2) version byte; any other length or version, or a tag mismatch,
// is an ErrInvalidSignature.
func UnpackPayload(payload []byte, secret string) (idHex string, err error) {
	if len(payload) != payloadSize {
		return "", &ErrInvalidSignature{Reason: fmt.Sprintf("payload length %d, want %d", len(payload), payloadSize)}
	}

	version := payload[0]
	if version != versionLegacy && version != versionCurrent {
		return "", &ErrInvalidSignature{Reason: fmt.Sprintf("unknown version byte %d", version)}
	}

	header := payload[:1+idSize]
	gotTag := payload[1+idSize:]
	wantTag := hmacTag(header, secret)

	if !hmac.Equal(gotTag, wantTag) {
		return "", &ErrInvalidSignature{Reason: "HMAC tag mismatch"}
	}

	id := payload[1 : 1+idSize]
	return hex.EncodeToString(id), nil
}

// WatermarkCode derives the human-facing code from a hex watermark id:
// "WMK-" followed by the uppercased first 12 hex characters.
func WatermarkCode(idHex string) (string, error) {
	if len(idHex) < 12 {
		return "", fmt.Errorf("watermark id too short: %d hex characters", len(idHex))
	}
	return "WMK-" + strings.ToUpper(idHex[:12]), nil
}

// hmacTag computes the first tagSize bytes of HMAC-SHA256(secret, header).
func hmacTag(header []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(header)
	full := mac.Sum(nil)
	return full[:tagSize]
}
