package nginx

import (
	"embed"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed templates
var templateFS embed.FS

// WriteTemplateTree copies the packaged base configuration into dst,
// creating directories as needed. Existing files are overwritten.
func WriteTemplateTree(dst string) error {
	return fs.WalkDir(templateFS, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel("templates", path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		data, err := templateFS.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0644)
	})
}
