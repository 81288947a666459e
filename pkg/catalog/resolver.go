package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/meshhive/meshsync/pkg/meshdata"
)

// catalogPrefix and catalogSuffix frame the database file name for one
// owner: mebbs_<shortName>.db.
const (
	catalogPrefix = "mebbs_"
	catalogSuffix = ".db"
)

// Resolver maps a device identity to its catalog, creating the catalog
// lazily on first sync. Open catalogs are cached per short name; Resolve
// is idempotent.
type Resolver struct {
	dataDir string

	mu   sync.Mutex
	open map[string]*Store
}

// NewResolver creates a resolver rooted at dataDir. The directory is
// created if absent.
func NewResolver(dataDir string) (*Resolver, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("catalog data directory must be provided")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}
	return &Resolver{
		dataDir: dataDir,
		open:    make(map[string]*Store),
	}, nil
}

// validShortName reports whether the owner short name is usable as a
// catalog key: non-empty, at most 4 characters, restricted charset so the
// name can never escape the data directory or break the file name.
func validShortName(short string) bool {
	if short == "" || len(short) > 4 {
		return false
	}
	for _, r := range short {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}

// Exists reports whether a catalog named exactly for short already exists.
// The check is a case-sensitive comparison against the directory listing,
// never a prefix or pattern match: a catalog for "ABCDE" must not be
// mistaken for "ABCD", and a case-preserving filesystem must not conflate
// "abcd" with "ABCD".
func (r *Resolver) Exists(short string) (bool, error) {
	entries, err := os.ReadDir(r.dataDir)
	if err != nil {
		return false, err
	}
	want := catalogPrefix + short + catalogSuffix
	for _, e := range entries {
		if !e.IsDir() && e.Name() == want {
			return true, nil
		}
	}
	return false, nil
}

// Resolve ensures a catalog exists for the identity's short name and
// returns the open store for it, plus whether the catalog was created by
// this call. The returned store is shared; callers must not close it.
// Close on the resolver tears all catalogs down.
func (r *Resolver) Resolve(identity meshdata.DeviceIdentity) (*Store, bool, error) {
	short := identity.ShortName
	if !validShortName(short) {
		return nil, false, &CatalogError{Name: short, Op: "resolve", Err: ErrInvalidShortName}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if store, ok := r.open[short]; ok {
		return store, false, nil
	}

	exists, err := r.Exists(short)
	if err != nil {
		return nil, false, &CatalogError{Name: short, Op: "list", Err: err}
	}

	path := filepath.Join(r.dataDir, catalogPrefix+short+catalogSuffix)
	store, err := openStore(short, path)
	if err != nil {
		return nil, false, &CatalogError{Name: short, Op: "open", Err: err}
	}
	r.open[short] = store
	return store, !exists, nil
}

// List returns the short names of every catalog under the data directory,
// sorted.
func (r *Resolver) List() ([]string, error) {
	entries, err := os.ReadDir(r.dataDir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, catalogPrefix) || !strings.HasSuffix(name, catalogSuffix) {
			continue
		}
		short := name[len(catalogPrefix) : len(name)-len(catalogSuffix)]
		if validShortName(short) {
			names = append(names, short)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Close closes every open catalog.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for short, store := range r.open {
		if err := store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.open, short)
	}
	return firstErr
}
