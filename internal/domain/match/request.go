package match

import "strings"

// RequestContext is an inbound HTTP request in domain terms, free of net/http.
// It is built once per request and read-only thereafter.
type RequestContext struct {
	Method      string
	Path        string
	QueryString string
	Query       map[string]string
	Headers     map[string]string
	Body        []byte
}

// Header looks up a request header case-insensitively.
func (rc *RequestContext) Header(name string) (string, bool) {
	return lookupFold(rc.Headers, name)
}

// QueryParam looks up a query parameter case-insensitively.
func (rc *RequestContext) QueryParam(name string) (string, bool) {
	return lookupFold(rc.Query, name)
}

// PathParams holds values captured by {name} segments of a path template.
type PathParams map[string]string

// Get looks up a path parameter case-insensitively.
func (p PathParams) Get(name string) (string, bool) {
	return lookupFold(p, name)
}

func lookupFold(m map[string]string, key string) (string, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}
