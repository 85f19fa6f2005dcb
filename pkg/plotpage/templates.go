package plotpage

import (
	"embed"
	"fmt"
	"html/template"
	"sync"
)

//go:embed templates/page.html
var templateFS embed.FS

var (
	page     *template.Template
	pageOnce sync.Once
	pageErr  error
)

// pageTemplate parses the embedded page template once.
func pageTemplate() (*template.Template, error) {
	pageOnce.Do(func() {
		page, pageErr = template.ParseFS(templateFS, "templates/page.html")
		if pageErr != nil {
			pageErr = fmt.Errorf("parse page template: %w", pageErr)
		}
	})

	return page, pageErr
}

// pageData feeds the page template.
type pageData struct {
	Title       string
	Description string
	Brand       string
	Theme       string
	Colors      themeCSS
	Sections    []sectionData
}

// sectionData is one pre-rendered section.
type sectionData struct {
	Title    string
	Subtitle string
	Chart    template.HTML
}

// themeCSS exposes theme colors as CSS-safe template values.
type themeCSS struct {
	Background  template.CSS
	Surface     template.CSS
	Border      template.CSS
	TextPrimary template.CSS
	TextMuted   template.CSS
	Accent      template.CSS
}

func newThemeCSS(cfg ThemeConfig) themeCSS {
	return themeCSS{
		Background:  template.CSS(cfg.Background),
		Surface:     template.CSS(cfg.Surface),
		Border:      template.CSS(cfg.Border),
		TextPrimary: template.CSS(cfg.TextPrimary),
		TextMuted:   template.CSS(cfg.TextMuted),
		Accent:      template.CSS(cfg.Accent),
	}
}
