package pricing

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTable(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCatalogLoadsOnce(t *testing.T) {
	path := writeTable(t, `
base_daily_rate_cents: 2500
duration_discounts:
  - min_days: 3
    rate: 0.9
rates:
  usd: 1.08
`)
	c := NewCatalog(path)

	first, err := c.Table()
	require.NoError(t, err)
	assert.Equal(t, int64(2500), first.BaseDailyRateCents)

	// The file is read at most once; a rewrite after first load is invisible.
	require.NoError(t, os.WriteFile(path, []byte("base_daily_rate_cents: 9999"), 0o644))
	again, err := c.Table()
	require.NoError(t, err)
	assert.Same(t, first, again)
}

func TestCatalogConcurrentFirstLoad(t *testing.T) {
	path := writeTable(t, "base_daily_rate_cents: 100")
	c := NewCatalog(path)

	var wg sync.WaitGroup
	tables := make([]*Table, 8)
	for i := 0; i < len(tables); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tbl, err := c.Table()
			assert.NoError(t, err)
			tables[i] = tbl
		}(i)
	}
	wg.Wait()

	for _, tbl := range tables {
		assert.Same(t, tables[0], tbl)
	}
}

func TestCatalogMissingFile(t *testing.T) {
	c := NewCatalog(filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := c.Table()
	require.Error(t, err)

	// The failure is memoized too.
	_, again := c.Table()
	assert.Equal(t, err, again)
}

func TestStaticCatalog(t *testing.T) {
	tbl := &Table{BaseDailyRateCents: 42}
	c := NewStaticCatalog(tbl)
	got, err := c.Table()
	require.NoError(t, err)
	assert.Same(t, tbl, got)
}
