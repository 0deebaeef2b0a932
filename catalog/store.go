// Package catalog is the product-data store behind the PIM tools. It follows
// the Pimcore-shaped model the bot answers questions about: sellable products
// identified by iwasku, their parent/variant relationships, marketplace
// listings, and the marketplaces themselves.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Options configures Open.
type Options struct {
	// Path is the SQLite database file. ":memory:" is accepted for tests.
	Path string
	// BusyTimeoutMs guards against SQLITE_BUSY under concurrent tool calls.
	// Zero means 5000.
	BusyTimeoutMs int
}

// Store provides read access to the catalog. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS products (
	iwasku           TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	ean_gtin         TEXT,
	variation_size   TEXT,
	variation_color  TEXT,
	category         TEXT,
	description      TEXT,
	product_weight   REAL,
	package_weight   REAL,
	product_cost     REAL,
	parent_iwasku    TEXT
);
CREATE INDEX IF NOT EXISTS ix_products_parent ON products(parent_iwasku);

CREATE TABLE IF NOT EXISTS marketplaces (
	id                  INTEGER PRIMARY KEY,
	name                TEXT NOT NULL,
	marketplace_type    TEXT,
	marketplace_url     TEXT,
	wisersell_store_id  TEXT
);

CREATE TABLE IF NOT EXISTS variant_products (
	id                     INTEGER PRIMARY KEY,
	iwasku                 TEXT NOT NULL REFERENCES products(iwasku),
	marketplace_id         INTEGER NOT NULL REFERENCES marketplaces(id),
	title                  TEXT,
	sale_price             REAL,
	sale_currency          TEXT,
	unique_marketplace_id  TEXT,
	quantity               INTEGER,
	last7_orders           INTEGER,
	last30_orders          INTEGER,
	total_orders           INTEGER
);
CREATE INDEX IF NOT EXISTS ix_variant_products_iwasku ON variant_products(iwasku);
CREATE INDEX IF NOT EXISTS ix_variant_products_marketplace ON variant_products(marketplace_id);
`

// Open opens (and if needed bootstraps) the catalog database.
func Open(opts Options) (*Store, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, fmt.Errorf("catalog db path is required")
	}
	busyTimeout := opts.BusyTimeoutMs
	if busyTimeout <= 0 {
		busyTimeout = 5000
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on", path, busyTimeout)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap catalog schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var productColumns = []string{
	"iwasku", "name", "ean_gtin", "variation_size", "variation_color",
	"category", "description", "product_weight", "package_weight",
	"product_cost", "parent_iwasku",
}

// ProductDetails returns one product row by iwasku. fields narrows the
// returned columns; unknown field names are ignored, and an empty or
// all-unknown list returns every column. Returns sql.ErrNoRows when the
// product does not exist.
func (s *Store) ProductDetails(ctx context.Context, productID string, fields []string) (map[string]any, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("catalog store is not initialized")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, fmt.Errorf("product_id is required")
	}

	cols := selectColumns(fields)
	query := "SELECT " + strings.Join(cols, ", ") + " FROM products WHERE iwasku = ?"
	rows, err := s.db.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("query product %s: %w", productID, err)
	}
	out, err := rowsToMaps(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, sql.ErrNoRows
	}
	return out[0], nil
}

// VariantProducts lists the sellable children of a parent product.
func (s *Store) VariantProducts(ctx context.Context, productID string) ([]map[string]any, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("catalog store is not initialized")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, fmt.Errorf("product_id is required")
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT iwasku, name, variation_size, variation_color, category FROM products WHERE parent_iwasku = ? ORDER BY iwasku",
		productID)
	if err != nil {
		return nil, fmt.Errorf("query variants of %s: %w", productID, err)
	}
	return rowsToMaps(rows)
}

// ProductListings lists the marketplace listings of a product.
func (s *Store) ProductListings(ctx context.Context, productID string) ([]map[string]any, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("catalog store is not initialized")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, fmt.Errorf("product_id is required")
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT vp.title, vp.sale_price, vp.sale_currency, vp.unique_marketplace_id,
		       vp.quantity, vp.last7_orders, vp.last30_orders, vp.total_orders,
		       m.name AS marketplace
		FROM variant_products vp
		JOIN marketplaces m ON m.id = vp.marketplace_id
		WHERE vp.iwasku = ?
		ORDER BY m.name`,
		productID)
	if err != nil {
		return nil, fmt.Errorf("query listings of %s: %w", productID, err)
	}
	return rowsToMaps(rows)
}

// MarketplaceDetails returns one marketplace row by id or name. Returns
// sql.ErrNoRows when no marketplace matches.
func (s *Store) MarketplaceDetails(ctx context.Context, marketplaceID string) (map[string]any, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("catalog store is not initialized")
	}
	marketplaceID = strings.TrimSpace(marketplaceID)
	if marketplaceID == "" {
		return nil, fmt.Errorf("marketplace_id is required")
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, marketplace_type, marketplace_url, wisersell_store_id FROM marketplaces WHERE CAST(id AS TEXT) = ? OR name = ?",
		marketplaceID, marketplaceID)
	if err != nil {
		return nil, fmt.Errorf("query marketplace %s: %w", marketplaceID, err)
	}
	out, err := rowsToMaps(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, sql.ErrNoRows
	}
	return out[0], nil
}

func selectColumns(fields []string) []string {
	if len(fields) == 0 {
		return productColumns
	}
	known := make(map[string]bool, len(productColumns))
	for _, c := range productColumns {
		known[c] = true
	}
	out := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		f = strings.ToLower(strings.TrimSpace(f))
		if !known[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	if len(out) == 0 {
		return productColumns
	}
	return out
}

func rowsToMaps(rows *sql.Rows) ([]map[string]any, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
