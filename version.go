package dashgate

import "fmt"

// Version is the gateway build reported on /ping.
type Version struct {
	Major int  `json:"major"`
	Minor int  `json:"minor"`
	Patch int  `json:"patch"`
	Dev   bool `json:"dev"`
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%t", v.Major, v.Minor, v.Patch, v.Dev)
}

// BuiltVersion is the version compiled into this binary.
var BuiltVersion = Version{
	Major: 2,
	Minor: 0,
	Patch: 0,
	Dev:   false,
}
