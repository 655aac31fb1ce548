// internal/app/features/confirm/views/views.go
package confirm

import (
	"embed"

	"github.com/dalemusser/waffle/pantry/templates"
)

//go:embed templates/*.gohtml
var FS embed.FS

func init() {
	templates.Register(templates.Set{
		Name:     "confirm",
		FS:       FS,
		Patterns: []string{"templates/*.gohtml"},
	})
}
