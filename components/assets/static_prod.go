//go:build !dev

package assets

import (
	"embed"
	"io/fs"
)

//go:embed all:dist
var staticFiles embed.FS

// DistFS holds the devtools console and the demo page.
func DistFS() fs.FS {
	sub, _ := fs.Sub(staticFiles, "dist")
	return sub
}
