package desktop

import (
	"fmt"
	"strings"

	"github.com/go-ole/go-ole"
)

// ID is the stable identifier the shell assigns to a desktop at creation.
type ID ole.GUID

// NilID is the all-zero identifier. It never names a live desktop.
var NilID ID

// IDFromGUID converts a native GUID.
func IDFromGUID(g ole.GUID) ID { return ID(g) }

// GUID returns the native representation.
func (id ID) GUID() ole.GUID { return ole.GUID(id) }

// IsNil reports whether id is the zero identifier.
func (id ID) IsNil() bool { return id == NilID }

// String formats the identifier in registry form with braces.
func (id ID) String() string {
	return fmt.Sprintf("{%08X-%04X-%04X-%02X%02X-%02X%02X%02X%02X%02X%02X}",
		id.Data1, id.Data2, id.Data3,
		id.Data4[0], id.Data4[1],
		id.Data4[2], id.Data4[3], id.Data4[4], id.Data4[5], id.Data4[6], id.Data4[7])
}

// ParseID accepts the identifier with or without surrounding braces.
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	g := ole.NewGUID(s)
	if g == nil {
		return NilID, fmt.Errorf("invalid desktop id %q", s)
	}
	return ID(*g), nil
}

// MustParseID is ParseID for constants; it panics on malformed input.
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := ParseID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
