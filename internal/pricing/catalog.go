package pricing

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Catalog owns the process-lifetime pricing table. The table is loaded at
// most once; concurrent first loads share a single read. The catalog is
// injected into the components that need it rather than held in a package
// global, so tests can build independent catalogs.
type Catalog struct {
	path  string
	once  sync.Once
	table *Table
	err   error
}

// NewCatalog creates a catalog backed by a YAML pricing file. The file is not
// read until the first Table call.
func NewCatalog(path string) *Catalog {
	return &Catalog{path: path}
}

// NewStaticCatalog wraps an already-built table, for tests and embedded use.
func NewStaticCatalog(table *Table) *Catalog {
	c := &Catalog{table: table}
	c.once.Do(func() {})
	return c
}

// Table returns the pricing table, loading it on first use.
func (c *Catalog) Table() (*Table, error) {
	c.once.Do(func() {
		data, err := os.ReadFile(c.path)
		if err != nil {
			c.err = fmt.Errorf("pricing: read table: %w", err)
			return
		}
		var t Table
		if err := yaml.Unmarshal(data, &t); err != nil {
			c.err = fmt.Errorf("pricing: parse table: %w", err)
			return
		}
		c.table = &t
	})
	return c.table, c.err
}
