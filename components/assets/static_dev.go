//go:build dev

package assets

import (
	"io/fs"
	"os"
)

// DistFS serves the pages from disk so they can be edited without a
// rebuild. JSBRIDGE_ASSETS_DIR overrides the default location.
func DistFS() fs.FS {
	dir := "components/assets/dist"
	if env := os.Getenv("JSBRIDGE_ASSETS_DIR"); env != "" {
		dir = env
	}
	return os.DirFS(dir)
}
