package normalize

import (
	"strings"

	"github.com/gofrs/uuid/v5"
)

// idNamespace scopes synthesized record ids.
var idNamespace = uuid.Must(uuid.FromString("5f0d3c52-8a0b-4c43-9a55-2f3e1f6a9d10"))

// fallbackID derives a stable id from other unique fields of a record. It
// returns "" when every part is empty.
func fallbackID(kind string, parts ...string) string {
	empty := true
	for _, p := range parts {
		if p != "" {
			empty = false
			break
		}
	}
	if empty {
		return ""
	}
	return uuid.NewV5(idNamespace, kind+":"+strings.Join(parts, "|")).String()
}
