package loader

import (
	"embed"
	"io/fs"
)

//go:embed workflows
var builtinFS embed.FS

// Builtin returns the source of workflows shipped inside the binary. It is
// always the lowest-precedence tier.
func Builtin() Source {
	sub, err := fs.Sub(builtinFS, "workflows")
	if err != nil {
		// The directory is embedded at compile time; this cannot fail.
		panic(err)
	}
	return Source{Name: "builtin", FS: sub}
}
