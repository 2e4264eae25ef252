// Package bodycodec decodes response bodies: reversing Content-Encoding
// (gzip, deflate, br, zstd) and decoding the result to text per a charset
// hint / Content-Type / BOM / UTF-8 fallback chain.
package bodycodec

import (
	"bytes"
	"compress/bzip2"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/whileendless/go-rawhttp-core/pkg/errors"
)

// DecodeResult is the outcome of reversing a Content-Encoding chain.
type DecodeResult struct {
	Data    []byte
	Partial bool // true if an unknown coding was left undecoded
}

// DecodeContentEncoding reverses contentEncoding's comma-separated coding
// list against data, applying decoders right-to-left: the codings are listed
// in application order, so undoing them walks the list backwards. Unknown
// codings are left undecoded with Partial=true rather than erroring.
func DecodeContentEncoding(data []byte, contentEncoding string) (*DecodeResult, error) {
	codings := splitCodings(contentEncoding)
	if len(codings) == 0 {
		return &DecodeResult{Data: data}, nil
	}

	cur := data
	for i := len(codings) - 1; i >= 0; i-- {
		coding := codings[i]
		decoded, err := decodeOne(cur, coding)
		if err != nil {
			if err == errUnknownCoding {
				return &DecodeResult{Data: cur, Partial: true}, nil
			}
			return nil, errors.NewDecodeError(coding, err)
		}
		cur = decoded
	}

	return &DecodeResult{Data: cur}, nil
}

func splitCodings(contentEncoding string) []string {
	if contentEncoding == "" {
		return nil
	}
	parts := strings.Split(contentEncoding, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && p != "identity" {
			out = append(out, p)
		}
	}
	return out
}

var errUnknownCoding = errors.NewValidationError("unknown content-encoding")

func decodeOne(data []byte, coding string) ([]byte, error) {
	switch coding {
	case "gzip", "x-gzip":
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case "deflate":
		return decodeDeflate(data)
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
	case "zstd":
		r, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case "bzip2":
		return io.ReadAll(bzip2.NewReader(bytes.NewReader(data)))
	default:
		return nil, errUnknownCoding
	}
}

// decodeDeflate handles both raw DEFLATE and zlib-wrapped DEFLATE: some
// servers mislabel one as the other, so the zlib header (0x78) is sniffed
// before falling back to raw flate.
func decodeDeflate(data []byte) ([]byte, error) {
	if len(data) >= 2 && data[0] == 0x78 {
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err == nil {
			defer r.Close()
			if out, err := io.ReadAll(r); err == nil {
				return out, nil
			}
		}
	}
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	return io.ReadAll(r)
}

// DecodeCharset converts data to a UTF-8 string using the priority chain:
// charsetHint, then a charset= parameter on contentType, then a BOM sniff,
// then UTF-8. Undecodable bytes are replaced with U+FFFD rather than
// erroring.
func DecodeCharset(data []byte, charsetHint, contentType string) string {
	name := strings.TrimSpace(charsetHint)
	if name == "" {
		name = charsetFromContentType(contentType)
	}
	if name == "" {
		if enc, ok := sniffBOM(data); ok {
			return decodeWith(data, enc)
		}
		name = "utf-8"
	}

	if strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8") {
		if utf8.Valid(data) {
			return string(data)
		}
		return strings.ToValidUTF8(string(data), "�")
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return strings.ToValidUTF8(string(data), "�")
	}
	return decodeWith(data, enc)
}

func decodeWith(data []byte, enc encoding.Encoding) string {
	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "�")
	}
	return strings.ToValidUTF8(string(out), "�")
}

func charsetFromContentType(contentType string) string {
	idx := strings.Index(strings.ToLower(contentType), "charset=")
	if idx < 0 {
		return ""
	}
	rest := contentType[idx+len("charset="):]
	rest = strings.TrimSpace(rest)
	if semi := strings.IndexByte(rest, ';'); semi >= 0 {
		rest = rest[:semi]
	}
	return strings.Trim(rest, `"' `)
}

// sniffBOM detects a byte-order mark and returns the matching decoder.
func sniffBOM(data []byte) (encoding.Encoding, bool) {
	switch {
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		return encoding.Nop, true // already UTF-8, BOM stripped by caller if desired
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		enc, _ := htmlindex.Get("utf-16le")
		return enc, true
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		enc, _ := htmlindex.Get("utf-16be")
		return enc, true
	}
	return nil, false
}
