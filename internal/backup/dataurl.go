// Data-URL codec for inlining photo bytes in a backup document.
//
// The interchange format embeds binary data as "data:<mime>;base64,<payload>"
// strings, the same shape a browser FileReader produces. Encode and decode
// are explicit steps so the format stays testable on its own.

package backup

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const base64Marker = ";base64,"

var errNotDataURL = errors.New("not a base64 data url")

// EncodeDataURL renders data as a base64 data URL with the given mime type.
func EncodeDataURL(mime string, data []byte) string {
	return "data:" + mime + base64Marker + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL parses a base64 data URL, returning the mime type and the
// decoded bytes.
func DecodeDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, errNotDataURL
	}
	mime, payload, ok := strings.Cut(rest, base64Marker)
	if !ok {
		return "", nil, errNotDataURL
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return mime, data, nil
}
