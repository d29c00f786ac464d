package permissions

import (
	"regexp"
	"strings"
)

var versionSegment = regexp.MustCompile(`^v\d+$`)

// DeriveName maps a route template and HTTP method to the canonical
// permission name used throughout the system.
//
//	/api/v1/posts                     GET    -> posts.get
//	/api/v1/posts/{post_id}           PUT    -> posts.detail.put
//	/api/v1/posts/{post_id}/comments  GET    -> posts.comments.get
//	/api/v1/analytics/engagement      *      -> analytics.engagement
//
// Path parameters whose name contains "id" collapse to the literal "detail";
// other parameters keep their bare name. The same route depth under two
// resources therefore yields the same ".detail." infix, which is fine because
// the resource prefix disambiguates. The function is pure: it must produce
// identical names when building the registry and when naming a check for a
// live request.
func DeriveName(routePath, method string) string {
	segments := strings.Split(routePath, "/")
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "" || seg == "api" {
			continue
		}
		parts = append(parts, seg)
	}
	if len(parts) > 0 && versionSegment.MatchString(parts[0]) {
		parts = parts[1:]
	}

	processed := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			if strings.Contains(part, "id") {
				processed = append(processed, "detail")
			} else {
				processed = append(processed, strings.Trim(part, "{}"))
			}
			continue
		}
		processed = append(processed, part)
	}

	base := strings.Join(processed, ".")
	if method == MethodAll {
		return base
	}
	return base + "." + strings.ToLower(method)
}
