package catalog

import (
	"fmt"
	"path"
	"strings"

	metaerrors "github.com/arkilian/metatables/internal/errors"
	"github.com/arkilian/metatables/internal/metatable"
)

// Identifier names a table within a namespace. Namespaces may be nested
// ("a.b"); the table name is the last segment.
type Identifier struct {
	Namespace string
	Name      string
}

// ParseIdentifier parses "namespace.name".
func ParseIdentifier(s string) (Identifier, error) {
	i := strings.LastIndex(s, ".")
	if i <= 0 || i == len(s)-1 {
		return Identifier{}, metaerrors.NewValidationError(metaerrors.CodeInvalidIdentifier,
			fmt.Sprintf("invalid table identifier %q: expected namespace.name", s))
	}
	ident := Identifier{Namespace: s[:i], Name: s[i+1:]}
	for _, part := range strings.Split(s, ".") {
		if part == "" || strings.ContainsAny(part, "/\\") {
			return Identifier{}, metaerrors.NewValidationError(metaerrors.CodeInvalidIdentifier,
				fmt.Sprintf("invalid table identifier %q", s))
		}
	}
	return ident, nil
}

func (i Identifier) String() string { return i.Namespace + "." + i.Name }

// location returns the table's storage location relative to the warehouse.
func (i Identifier) location() string {
	return path.Join(append(strings.Split(i.Namespace, "."), i.Name)...)
}

// ParseMetadataTableName splits "namespace.name.kind" into the base table
// identifier and the metadata table type.
func ParseMetadataTableName(s string) (Identifier, metatable.MetadataTableType, error) {
	i := strings.LastIndex(s, ".")
	if i <= 0 {
		return Identifier{}, "", metaerrors.NewValidationError(metaerrors.CodeInvalidIdentifier,
			fmt.Sprintf("invalid metadata table name %q: expected namespace.table.kind", s))
	}
	kind, err := metatable.ParseType(s[i+1:])
	if err != nil {
		return Identifier{}, "", err
	}
	ident, err := ParseIdentifier(s[:i])
	if err != nil {
		return Identifier{}, "", err
	}
	return ident, kind, nil
}
