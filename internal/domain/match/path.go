package match

import "strings"

// IsMatch reports whether path matches the template. A {name} segment
// matches any single non-empty segment; literal segments compare
// case-insensitively and segment counts must agree.
func IsMatch(template, path string) bool {
	return walkSegments(template, path, nil)
}

// ExtractPathParams returns the values captured by the template's {name}
// segments, or nil when path does not match.
func ExtractPathParams(template, path string) PathParams {
	params := PathParams{}
	if !walkSegments(template, path, params) {
		return nil
	}
	return params
}

func walkSegments(template, path string, params PathParams) bool {
	tmpl := strings.Trim(template, "/")
	p := strings.Trim(path, "/")

	for {
		var ts, ps string
		ts, tmpl, _ = strings.Cut(tmpl, "/")
		ps, p, _ = strings.Cut(p, "/")

		if name, ok := paramName(ts); ok {
			if ps == "" {
				return false
			}
			if params != nil {
				params[name] = ps
			}
		} else if !strings.EqualFold(ts, ps) {
			return false
		}

		switch {
		case tmpl == "" && p == "":
			return true
		case tmpl == "" || p == "":
			return false
		}
	}
}

func paramName(segment string) (string, bool) {
	if len(segment) > 2 && segment[0] == '{' && segment[len(segment)-1] == '}' {
		return segment[1 : len(segment)-1], true
	}
	return "", false
}
