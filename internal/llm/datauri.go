package llm

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DecodeDataURI decodes a data: URI into its payload and media type.
// Both base64 and plain-text forms are supported.
func DecodeDataURI(uri string) ([]byte, string, error) {
	if !strings.HasPrefix(uri, "data:") {
		return nil, "", fmt.Errorf("not a data URI")
	}

	header, payload, found := strings.Cut(uri, ",")
	if !found {
		return nil, "", fmt.Errorf("malformed data URI")
	}

	meta := strings.TrimPrefix(header, "data:")
	mediaType, _, _ := strings.Cut(meta, ";")
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	if strings.HasSuffix(header, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, "", fmt.Errorf("decode base64 payload: %w", err)
		}
		return data, mediaType, nil
	}
	return []byte(payload), mediaType, nil
}
