package plotpage

// Theme selects a page color scheme.
type Theme string

const (
	// ThemeDark is the default scheme.
	ThemeDark Theme = "dark"

	// ThemeLight is the print-friendly scheme.
	ThemeLight Theme = "light"
)

// ThemeConfig holds the styling values the page template and the chart
// builders share.
type ThemeConfig struct {
	// Page colors.
	Background  string
	Surface     string
	Border      string
	TextPrimary string
	TextMuted   string
	Accent      string

	// Chart colors.
	ChartBackground string
	ChartGrid       string
	ChartAxis       string
	ChartText       string
	ChartTextMuted  string
}

// Config returns the styling values for the theme. Unknown themes resolve
// to dark.
func (t Theme) Config() ThemeConfig {
	if t == ThemeLight {
		return ThemeConfig{
			Background:      "#ffffff",
			Surface:         "#f6f8fa",
			Border:          "#d0d7de",
			TextPrimary:     "#1f2328",
			TextMuted:       "#656d76",
			Accent:          "#0969da",
			ChartBackground: "#ffffff",
			ChartGrid:       "#eaeef2",
			ChartAxis:       "#d0d7de",
			ChartText:       "#1f2328",
			ChartTextMuted:  "#656d76",
		}
	}

	return ThemeConfig{
		Background:      "#0d1117",
		Surface:         "#161b22",
		Border:          "#30363d",
		TextPrimary:     "#e6edf3",
		TextMuted:       "#8b949e",
		Accent:          "#58a6ff",
		ChartBackground: "#161b22",
		ChartGrid:       "#21262d",
		ChartAxis:       "#30363d",
		ChartText:       "#e6edf3",
		ChartTextMuted:  "#8b949e",
	}
}

// SeriesPalette returns the ordered series colors for the theme. Callers
// index into it modulo its length.
func (t Theme) SeriesPalette() []string {
	if t == ThemeLight {
		return []string{"#0969da", "#1a7f37", "#9a6700", "#cf222e", "#8250df", "#1b7c83"}
	}

	return []string{"#4c8dff", "#3fb950", "#d29922", "#f85149", "#a371f7", "#39c5cf"}
}
