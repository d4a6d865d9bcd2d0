package data

import (
	"embed"
	"io/fs"

	"github.com/goliatone/go-scriptdesk/script"
)

//go:embed catalog
var embeddedFS embed.FS

const defaultCatalogFile = "scripts.yaml"

// CatalogFS returns the embedded catalog files rooted at `data/catalog`.
func CatalogFS() fs.FS {
	sub, err := fs.Sub(embeddedFS, "catalog")
	if err != nil {
		return embeddedFS
	}
	return sub
}

// DefaultCatalogYAML returns the raw embedded catalog document.
func DefaultCatalogYAML() ([]byte, error) {
	return fs.ReadFile(CatalogFS(), defaultCatalogFile)
}

// DefaultCatalog loads the embedded catalog with the built-in rules.
func DefaultCatalog() (*script.Catalog, error) {
	raw, err := DefaultCatalogYAML()
	if err != nil {
		return nil, err
	}
	return script.LoadCatalog(raw)
}
