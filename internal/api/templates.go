package api

import (
	"embed"
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"github.com/lensfeed/lensfeed/internal/store"
)

//go:embed templates/*.html
var templateFiles embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFiles, "templates/*.html"))

// pageData is what every page template receives.
type pageData struct {
	CurrentUser string
	PageOwner   string
	Photos      []store.PhotoSummary
	Stats       store.ProfileStats
	Error       string
}

func (h *Handlers) render(w http.ResponseWriter, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplates.ExecuteTemplate(w, name, data); err != nil {
		h.log.Error("template render failed", zap.String("template", name), zap.Error(err))
	}
}
