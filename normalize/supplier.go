package normalize

import (
	"sort"
	"strings"
)

// Supplier is the supplier view used by the registry and booking forms.
type Supplier struct {
	ID          string `json:"_id"`
	SupCode     string `json:"supCode,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Title       string `json:"title,omitempty"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
	Status      string `json:"status"`
}

var (
	suppliers = adapter[Supplier]{name: "suppliers", build: buildSupplier, sort: sortSuppliers}

	SupplierAdapter Shaper = suppliers
)

// Suppliers normalizes a supplier list sorted by supplier code, uncoded
// suppliers last.
func Suppliers(raw []byte) (Result[Supplier], error) {
	return suppliers.normalize(raw)
}

func SupplierRecord(raw []byte) (Supplier, error) {
	return suppliers.record(raw)
}

func buildSupplier(r record, _ int) (Supplier, bool) {
	s := Supplier{
		SupCode:     r.str("supCode", "sup_code", "code", "supplierCode"),
		DisplayName: r.str("displayName", "display_name"),
		Title:       r.str("title", "prefix"),
		FirstName:   r.str("firstName", "first_name", "fname"),
		LastName:    r.str("lastName", "last_name", "lname"),
		Phone:       r.str("phone", "tel", "phoneNumber", "phone_number"),
		Address:     r.str("address"),
		Status:      activeStatus(r),
	}

	if name := r.str("name", "fullName", "full_name"); name != "" {
		code, rest := splitSupplierName(name)
		if s.SupCode == "" {
			s.SupCode = code
		}
		if s.DisplayName == "" {
			s.DisplayName = rest
		}
	}
	if s.DisplayName == "" {
		s.DisplayName = joinNonEmpty(s.Title, s.FirstName, s.LastName)
	}

	if s.SupCode == "" && s.DisplayName == "" {
		return Supplier{}, false
	}

	s.ID = r.str("_id", "id", "supplierId", "supplier_id")
	if s.ID == "" {
		if s.SupCode != "" {
			s.ID = fallbackID("supplier", s.SupCode)
		} else {
			s.ID = fallbackID("supplier-name", s.DisplayName)
		}
	}
	return s, true
}

// splitSupplierName splits the "SUP01 : John Doe" label used by the upstream
// into its code and display name. Labels without a code prefix are returned
// as the name.
func splitSupplierName(label string) (code, name string) {
	label = strings.TrimSpace(label)
	i := strings.Index(label, ":")
	if i <= 0 {
		return "", label
	}
	code = strings.TrimSpace(label[:i])
	if code == "" || strings.ContainsAny(code, " \t") {
		return "", label
	}
	return code, strings.TrimSpace(label[i+1:])
}

func sortSuppliers(items []Supplier) {
	sortThai(items, func(s Supplier) (string, string) { return s.SupCode, s.DisplayName })
	// Suppliers without a code go last.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].SupCode != "" && items[j].SupCode == ""
	})
}
