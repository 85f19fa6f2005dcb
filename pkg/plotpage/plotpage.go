// Package plotpage renders self-contained HTML pages of echarts sections.
// Charts render through go-echarts; the page inlines each chart's element
// and init script so the output is a single file with no local assets.
package plotpage

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"
)

// Renderable is anything that can write itself as HTML. Every go-echarts
// chart satisfies it.
type Renderable interface {
	Render(w io.Writer) error
}

// Section is one titled chart block on a page.
type Section struct {
	Title    string
	Subtitle string
	Chart    Renderable
}

// Page is a complete visualization page.
type Page struct {
	Title       string
	Description string
	Brand       string
	Theme       Theme
	Sections    []Section
}

// NewPage returns a dark-themed page with the default brand line.
func NewPage(title, description string) *Page {
	return &Page{
		Title:       title,
		Description: description,
		Brand:       "Rollgate",
		Theme:       ThemeDark,
	}
}

// WithTheme sets the page theme and returns the page.
func (p *Page) WithTheme(theme Theme) *Page {
	p.Theme = theme

	return p
}

// Add appends sections to the page.
func (p *Page) Add(sections ...Section) {
	p.Sections = append(p.Sections, sections...)
}

// Render writes the whole page as HTML.
func (p *Page) Render(w io.Writer) error {
	colors := p.Theme.Config()

	sections := make([]sectionData, 0, len(p.Sections))

	for _, section := range p.Sections {
		fragment, chartErr := renderChartFragment(section.Chart)
		if chartErr != nil {
			return fmt.Errorf("render section %q: %w", section.Title, chartErr)
		}

		sections = append(sections, sectionData{
			Title:    section.Title,
			Subtitle: section.Subtitle,
			Chart:    fragment,
		})
	}

	data := pageData{
		Title:       p.Title,
		Description: p.Description,
		Brand:       p.Brand,
		Theme:       string(p.Theme),
		Colors:      newThemeCSS(colors),
		Sections:    sections,
	}

	tmpl, tmplErr := pageTemplate()
	if tmplErr != nil {
		return tmplErr
	}

	var buf bytes.Buffer

	if execErr := tmpl.ExecuteTemplate(&buf, "page.html", data); execErr != nil {
		return fmt.Errorf("execute page template: %w", execErr)
	}

	if _, writeErr := w.Write(buf.Bytes()); writeErr != nil {
		return fmt.Errorf("write page: %w", writeErr)
	}

	return nil
}

// renderChartFragment renders a chart and strips it down to the element
// and init script, dropping the full-page wrapper go-echarts emits.
func renderChartFragment(chart Renderable) (template.HTML, error) {
	if chart == nil {
		return "", nil
	}

	var buf bytes.Buffer

	if renderErr := chart.Render(&buf); renderErr != nil {
		return "", renderErr
	}

	return template.HTML(extractChartContent(buf.String())), nil
}

// extractChartContent pulls the chart container and its script out of a
// full go-echarts HTML page. Fragments that are not full pages pass
// through unchanged.
func extractChartContent(html string) string {
	trimmed := strings.TrimSpace(html)
	if !strings.HasPrefix(trimmed, "<!DOCTYPE") && !strings.HasPrefix(trimmed, "<html") {
		return html
	}

	start := strings.Index(html, `<div class="container">`)
	if start == -1 {
		return html
	}

	end := strings.Index(html, `</body>`)
	if end == -1 {
		return html
	}

	content := html[start:end]
	content = strings.ReplaceAll(content, `class="container"`, `class="echart-box"`)

	return stripStyleTags(content)
}

// stripStyleTags removes inline style blocks so chart fragments cannot
// override the page stylesheet.
func stripStyleTags(content string) string {
	const closeTag = "</style>"

	for {
		i := strings.Index(content, "<style>")
		if i == -1 {
			return content
		}

		j := strings.Index(content[i:], closeTag)
		if j == -1 {
			return content
		}

		content = content[:i] + content[i+j+len(closeTag):]
	}
}
