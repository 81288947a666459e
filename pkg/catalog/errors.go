package catalog

import (
	"errors"
	"fmt"
)

// ErrInvalidShortName indicates the owner short name cannot be used as a
// catalog name.
var ErrInvalidShortName = errors.New("invalid catalog short name")

// CatalogError wraps a catalog create/select/apply failure. Fatal for the
// current sync pass only; no other catalog is affected.
type CatalogError struct {
	Name string // catalog short name
	Op   string
	Err  error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("catalog %q: %s: %v", e.Name, e.Op, e.Err)
}

func (e *CatalogError) Unwrap() error {
	return e.Err
}
