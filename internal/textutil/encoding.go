// Package textutil provides text encoding and normalization utilities.
package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// EnsureUTF8 ensures a string is valid UTF-8.
// Text recovered from archived payloads occasionally carries legacy
// single-byte or Asian encodings; if the input is not already valid UTF-8
// this attempts charset detection and conversion before falling back to
// replacing invalid bytes.
func EnsureUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}

	data := []byte(s)

	// Detection confidence is unreliable on short samples, so accept a
	// lower threshold for them.
	minConfidence := 30
	if len(data) > 50 {
		minConfidence = 50
	}

	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(data)
	if err == nil && result.Confidence >= minConfidence {
		if enc := encodingByName(result.Charset); enc != nil {
			decoded, err := enc.NewDecoder().Bytes(data)
			if err == nil && utf8.Valid(decoded) {
				return string(decoded)
			}
		}
	}

	// Try common encodings in order of likelihood: single-byte Western
	// first, then multi-byte Asian encodings.
	candidates := []encoding.Encoding{
		charmap.Windows1252,
		charmap.ISO8859_1,
		charmap.ISO8859_15,
		japanese.ShiftJIS,
		japanese.EUCJP,
		korean.EUCKR,
		simplifiedchinese.GBK,
		traditionalchinese.Big5,
	}

	for _, enc := range candidates {
		decoded, err := enc.NewDecoder().Bytes(data)
		if err == nil && utf8.Valid(decoded) {
			return string(decoded)
		}
	}

	return SanitizeUTF8(s)
}

// SanitizeUTF8 replaces invalid UTF-8 bytes with the replacement character.
func SanitizeUTF8(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			sb.WriteRune('�')
			i++
		} else {
			sb.WriteRune(r)
			i += size
		}
	}
	return sb.String()
}

// encodingByName returns an encoding for the given IANA charset name.
func encodingByName(name string) encoding.Encoding {
	switch name {
	case "windows-1252", "CP1252", "cp1252":
		return charmap.Windows1252
	case "ISO-8859-1", "iso-8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1
	case "ISO-8859-15", "iso-8859-15", "latin9":
		return charmap.ISO8859_15
	case "ISO-8859-2", "iso-8859-2", "latin2":
		return charmap.ISO8859_2
	case "Shift_JIS", "shift_jis", "shift-jis", "sjis":
		return japanese.ShiftJIS
	case "EUC-JP", "euc-jp", "eucjp":
		return japanese.EUCJP
	case "ISO-2022-JP", "iso-2022-jp":
		return japanese.ISO2022JP
	case "EUC-KR", "euc-kr", "euckr":
		return korean.EUCKR
	case "GB2312", "gb2312", "GBK", "gbk":
		return simplifiedchinese.GBK
	case "GB18030", "gb18030":
		return simplifiedchinese.GB18030
	case "Big5", "big5", "big-5":
		return traditionalchinese.Big5
	case "KOI8-R", "koi8-r":
		return charmap.KOI8R
	case "KOI8-U", "koi8-u":
		return charmap.KOI8U
	default:
		return nil
	}
}

var diacriticFolder = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// FoldDiacritics strips combining diacritical marks so "café" folds to
// "cafe". Used by the search tokenizer to mirror the FTS tokenizer's
// remove_diacritics behavior. Returns the input unchanged on transform
// failure.
func FoldDiacritics(s string) string {
	folded, _, err := transform.String(diacriticFolder, s)
	if err != nil {
		return s
	}
	return folded
}

// TruncateRunes truncates a string to maxRunes runes (not bytes), adding
// "..." if truncated. UTF-8 safe.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}
