package services

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sophialabs/mimicry/internal/domain/endpoint"
)

// InferContentType determines the content type of a response body: the
// explicit header if any, then JSON and XML sniffing, then net/http's
// content sniffing.
func InferContentType(explicit string, protocol endpoint.Protocol, body []byte) string {
	if explicit != "" {
		return explicit
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "application/octet-stream"
	}

	if (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed) {
		return "application/json"
	}

	if trimmed[0] == '<' {
		sniffed := http.DetectContentType(trimmed)
		if !strings.HasPrefix(sniffed, "text/html") {
			if protocol == endpoint.ProtocolSOAP {
				return "text/xml; charset=utf-8"
			}
			return "application/xml"
		}
		return sniffed
	}

	return http.DetectContentType(body)
}
