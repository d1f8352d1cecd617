package normalize

// Lookup is a reference-data entry such as a rubber type or a location.
type Lookup struct {
	ID          string `json:"_id"`
	Name        string `json:"name"`
	Code        string `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
}

var (
	lookups = adapter[Lookup]{name: "lookups", build: buildLookup, sort: sortLookups}

	LookupAdapter Shaper = lookups
)

// Lookups normalizes reference data sorted by display name in Thai order.
// Entries need both an id and a name.
func Lookups(raw []byte) (Result[Lookup], error) {
	return lookups.normalize(raw)
}

func buildLookup(r record, _ int) (Lookup, bool) {
	l := Lookup{
		Code:        r.str("code", "value", "key"),
		Name:        r.str("name", "displayName", "label", "title", "rubberTypeName", "locationName"),
		Description: r.str("description", "desc", "detail"),
	}
	l.ID = r.str("_id", "id")
	if l.ID == "" {
		l.ID = l.Code
	}
	if l.ID == "" || l.Name == "" {
		return Lookup{}, false
	}
	return l, true
}

func sortLookups(items []Lookup) {
	sortThai(items, func(l Lookup) (string, string) { return l.Name, l.ID })
}
