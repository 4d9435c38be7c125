package router

import "strings"

// DefaultIndexNames are the resource-name segments that collapse their parent
// segment to "/" during convention-based resolution.
var DefaultIndexNames = []string{"index", "home"}

// ResolveSourcePath maps a hierarchical resource name to a URL pattern:
// dots become path separators, "[param]" segments become ":param" captures,
// and index names collapse to their parent. The core never touches a
// filesystem; callers supply the resource name as a plain string.
//
//	"api.users.[id]" -> "/api/users/:id"
//	"docs.index"     -> "/docs"
//	"index"          -> "/"
func ResolveSourcePath(source string, indexNames []string) string {
	if indexNames == nil {
		indexNames = DefaultIndexNames
	}

	indexed := make(map[string]bool, len(indexNames))
	for _, name := range indexNames {
		indexed[name] = true
	}

	parts := strings.Split(source, ".")

	// An index name collapses into its parent only in final position;
	// "index.archive" keeps the literal segment.
	if len(parts) > 0 && indexed[parts[len(parts)-1]] {
		parts = parts[:len(parts)-1]
	}

	var segments []string
	for _, part := range parts {
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, "[") && strings.HasSuffix(part, "]") {
			segments = append(segments, ":"+part[1:len(part)-1])
			continue
		}
		segments = append(segments, part)
	}

	if len(segments) == 0 {
		return "/"
	}

	return "/" + strings.Join(segments, "/")
}
