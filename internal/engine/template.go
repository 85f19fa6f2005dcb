package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// maxSlugLen caps artifact slugs so paths stay manageable.
const maxSlugLen = 80

// adSlots are the placement markers injected into every generated article.
var adSlots = []string{"top-banner", "inline-1", "inline-2", "footer"}

// financeDisclaimer is prepended to finance content. Informational-only
// framing is a policy requirement for that category.
const financeDisclaimer = "This content is for informational purposes only and is not investment, legal, or tax advice."

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// slugify lowercases text and collapses every non-alphanumeric run into a
// single hyphen. Empty results become "brief".
func slugify(text string) string {
	out := strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(text), "-"), "-")
	if out == "" {
		return "brief"
	}

	if len(out) > maxSlugLen {
		out = strings.Trim(out[:maxSlugLen], "-")
	}

	return out
}

// titleKeywords extracts up to four distinct words of four or more letters
// from a title, preserving order. Short or empty titles get stock keywords.
func titleKeywords(title string) []string {
	fallback := []string{"trend", "market", "signal"}

	var uniq []string

	seen := map[string]struct{}{}
	for _, word := range strings.Fields(title) {
		word = strings.Trim(word, " ,.!?:;()[]{}\"'")
		if len(word) < 4 {
			continue
		}

		lower := strings.ToLower(word)
		if _, dup := seen[lower]; dup {
			continue
		}

		seen[lower] = struct{}{}

		uniq = append(uniq, word)
		if len(uniq) >= 4 {
			break
		}
	}

	if len(uniq) == 0 {
		return fallback
	}

	return uniq
}

// TemplateGenerator is the free deterministic fallback engine. It renders a
// fixed briefing structure from the topic alone, so output depends only on
// the request.
type TemplateGenerator struct{}

// NewTemplateGenerator returns the fallback engine.
func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{}
}

// Generate renders one templated briefing. It never fails and never costs.
func (g *TemplateGenerator) Generate(_ context.Context, req Request) (Item, error) {
	topic := req.Topic
	keywords := titleKeywords(topic.Title)

	summary := fmt.Sprintf(
		"%s. This briefing captures the core signal, why it matters right now, and what to watch next.",
		topic.Title,
	)

	second := "continued demand"
	if len(keywords) > 1 {
		second = keywords[1]
	}

	third := "execution risk"
	if len(keywords) > 2 {
		third = keywords[2]
	}

	var b strings.Builder

	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format+"\n", args...)
	}

	line("# %s", topic.Title)
	line("")
	line("Category: %s", topic.Category)
	line("")
	line("[AD_SLOT:%s]", adSlots[0])
	line("")

	if topic.Category == "finance" {
		line("> %s", financeDisclaimer)
		line("")
	}

	line("## TL;DR")
	line("%s", summary)
	line("")
	line("## Key Points")
	line("- The main trend centers on %s and related ecosystem shifts.", keywords[0])
	line("- Recent momentum suggests %s in the near term.", second)
	line("- Operators should monitor %s over the next cycle.", third)
	line("")
	line("[AD_SLOT:%s]", adSlots[1])
	line("")
	line("## Why It Matters")
	line("This trend has cross-platform implications for reach, monetization, and competitive positioning.")
	line("")
	line("## Sources")

	if len(topic.SourceURLs) == 0 {
		line("- Source unavailable")
	} else {
		for _, url := range topic.SourceURLs {
			line("- %s", url)
		}
	}

	line("")
	line("## FAQ")
	line("- **What changed this week?** The underlying signal moved from isolated updates to a broader pattern with clear adoption pressure.")
	line("- **What should readers track next?** Watch follow-up announcements, distribution metrics, and whether sentiment remains consistent over 7-14 days.")
	line("")
	line("[AD_SLOT:%s]", adSlots[2])
	line("")
	line("[AD_SLOT:%s]", adSlots[3])

	markdown := strings.TrimSpace(b.String()) + "\n"

	return Item{
		Slug:      slugify(topic.Title),
		Title:     topic.Title,
		Category:  topic.Category,
		Markdown:  markdown,
		WordCount: len(strings.Fields(markdown)),
		Engine:    KindFallback,
	}, nil
}
