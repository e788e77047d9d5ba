package check

import "strings"

// toGjsonPath converts a JSONPath expression such as $.users[0].name into
// the gjson form users.0.name. Only dotted names, quoted bracket names and
// numeric indexes are supported.
func toGjsonPath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	var sb strings.Builder
	for i := 0; i < len(path); i++ {
		c := path[i]
		switch c {
		case '[':
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				sb.WriteString(path[i:])
				return sb.String()
			}
			inner := strings.Trim(path[i+1:i+end], `'"`)
			if sb.Len() > 0 {
				sb.WriteByte('.')
			}
			sb.WriteString(escapeGjson(inner))
			i += end
		case '.':
			sb.WriteByte('.')
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// escapeGjson escapes characters gjson treats as path syntax in a single
// key segment.
func escapeGjson(key string) string {
	if !strings.ContainsAny(key, ".*?|#@") {
		return key
	}
	var sb strings.Builder
	for _, r := range key {
		if strings.ContainsRune(".*?|#@", r) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
