// Package archive extracts displayable text from the binary payloads the
// Messages database stores when the plain text column is empty.
//
// Two container formats appear in practice: NSKeyedArchiver binary plists
// ("bplist00") and the older typedstream serialization ("streamtyped").
// Extraction is strictly best-effort; malformed or truncated payloads yield
// an empty string, never an error.
package archive

import (
	"bytes"
	"encoding/binary"
	"strings"

	"howett.net/plist"

	"github.com/wesm/chatvault/internal/textutil"
)

var (
	bplistMagic = []byte("bplist00")
	nsString    = []byte("NSString")
	nsDict      = []byte("NSDictionary")
	streamtyped = []byte("streamtyped")
)

// Decode extracts the message text embedded in a keyed-archive payload.
// Returns "" when the payload is empty, malformed, or carries no text.
// Decoding is pure: the same bytes always yield the same output.
func Decode(blob []byte) string {
	if len(blob) == 0 {
		return ""
	}

	if bytes.HasPrefix(blob, bplistMagic) {
		if text := decodeKeyedPlist(blob); text != "" {
			return text
		}
	}

	return decodeTypedStream(blob)
}

// decodeKeyedPlist unarchives an NSKeyedArchiver binary plist and scans its
// object table for the message string. The archive's $objects array holds
// every object in the graph; the text is the first string that is not a
// structural marker.
func decodeKeyedPlist(blob []byte) string {
	var root map[string]interface{}
	if _, err := plist.Unmarshal(blob, &root); err != nil {
		return ""
	}

	objects, ok := root["$objects"].([]interface{})
	if !ok {
		return ""
	}

	for _, obj := range objects {
		s, ok := obj.(string)
		if !ok {
			continue
		}
		if isStructuralString(s) {
			continue
		}
		if cleaned := cleanText(s); cleaned != "" {
			return cleaned
		}
	}
	return ""
}

// isStructuralString reports whether s is archive metadata rather than
// message content: class names, attribute keys, and the $null placeholder.
func isStructuralString(s string) bool {
	if s == "$null" {
		return true
	}
	if strings.HasPrefix(s, "NS") || strings.HasPrefix(s, "__k") || strings.HasPrefix(s, "{") {
		return true
	}
	// Attribute keys like "CKMessagePartAttributeName".
	if strings.HasPrefix(s, "CK") && strings.HasSuffix(s, "AttributeName") {
		return true
	}
	return false
}

// decodeTypedStream extracts text from a typedstream-encoded
// NSAttributedString. The plain text sits between an "NSString" class
// marker and the following "NSDictionary" attribute run, prefixed by one of
// several length encodings.
func decodeTypedStream(blob []byte) string {
	section := textSection(blob)
	if section == nil {
		return ""
	}

	// '+' marker: 0x2B, then a one-byte length (< 0x80) or an extended
	// little-endian length of 2, 3, or 4 bytes tagged 0x81..0x83.
	if text := decodePlusMarker(section); text != "" {
		return text
	}

	// 0x4F marker with big-endian lengths (bplist-style data headers).
	if text := decodeDataMarker(section); text != "" {
		return text
	}

	// Legacy 'I' marker with a 4-byte big-endian length.
	if text := decodeLegacyMarker(section); text != "" {
		return text
	}

	// Last resort: scan for printable runs, skipping metadata-looking
	// strings.
	if bytes.Contains(blob, streamtyped) {
		return scanPrintable(section)
	}
	return ""
}

// textSection returns the bytes between the first "NSString" marker and the
// following "NSDictionary" marker (or the end of the blob), or nil when no
// NSString marker exists.
func textSection(blob []byte) []byte {
	idx := bytes.Index(blob, nsString)
	if idx < 0 {
		return nil
	}
	section := blob[idx+len(nsString):]
	if end := bytes.Index(section, nsDict); end >= 0 {
		section = section[:end]
	}
	return section
}

func decodePlusMarker(section []byte) string {
	plus := bytes.IndexByte(section, '+')
	if plus < 0 || plus+2 >= len(section) {
		return ""
	}

	marker := section[plus+1]
	var length, start int
	switch {
	case marker < 0x80:
		length = int(marker)
		start = plus + 2
	case marker == 0x81 && plus+4 <= len(section):
		length = int(binary.LittleEndian.Uint16(section[plus+2 : plus+4]))
		start = plus + 4
	case marker == 0x82 && plus+5 <= len(section):
		b := section[plus+2 : plus+5]
		length = int(b[0]) | int(b[1])<<8 | int(b[2])<<16
		start = plus + 5
	case marker == 0x83 && plus+6 <= len(section):
		length = int(binary.LittleEndian.Uint32(section[plus+2 : plus+6]))
		start = plus + 6
	default:
		return ""
	}

	if length <= 0 || start+length > len(section) {
		return ""
	}
	return cleanText(string(section[start : start+length]))
}

func decodeDataMarker(section []byte) string {
	for i := 0; i+2 < len(section); i++ {
		if section[i] != 0x4F {
			continue
		}
		var length, start int
		switch section[i+1] {
		case 0x10:
			length = int(section[i+2])
			start = i + 3
		case 0x11:
			if i+4 > len(section) {
				continue
			}
			length = int(binary.BigEndian.Uint16(section[i+2 : i+4]))
			start = i + 4
		case 0x12:
			if i+6 > len(section) {
				continue
			}
			length = int(binary.BigEndian.Uint32(section[i+2 : i+6]))
			start = i + 6
		default:
			continue
		}
		if length <= 0 || length >= 100000 || start+length > len(section) {
			continue
		}
		if text := cleanText(string(section[start : start+length])); text != "" {
			return text
		}
	}
	return ""
}

func decodeLegacyMarker(section []byte) string {
	idx := bytes.IndexByte(section, 'I')
	if idx < 0 || idx+5 >= len(section) {
		return ""
	}
	length := int(binary.BigEndian.Uint32(section[idx+1 : idx+5]))
	if length <= 0 || length >= 100000 || idx+5+length > len(section) {
		return ""
	}
	return cleanText(string(section[idx+5 : idx+5+length]))
}

// scanPrintable returns the first run of at least four printable bytes
// (ASCII or high Latin bytes) that does not look like archive metadata.
func scanPrintable(section []byte) string {
	isPrintable := func(b byte) bool {
		return (b >= 0x20 && b <= 0x7e) || b >= 0xc0
	}

	for i := 0; i < len(section); {
		if !isPrintable(section[i]) {
			i++
			continue
		}
		j := i
		for j < len(section) && isPrintable(section[j]) {
			j++
		}
		if j-i >= 4 {
			candidate := strings.TrimSpace(textutil.EnsureUTF8(string(section[i:j])))
			if candidate != "" && !strings.HasPrefix(candidate, "NS") && !strings.HasPrefix(candidate, "{") {
				return candidate
			}
		}
		i = j
	}
	return ""
}

// cleanText trims whitespace and repairs the encoding of extracted bytes.
func cleanText(s string) string {
	return strings.TrimSpace(textutil.EnsureUTF8(s))
}
