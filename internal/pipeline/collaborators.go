package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Sumatoshi-tech/rollgate/internal/category"
	"github.com/Sumatoshi-tech/rollgate/internal/engine"
	"github.com/Sumatoshi-tech/rollgate/pkg/dates"
)

// Ingestor collects candidate topics for one category.
type Ingestor interface {
	Fetch(ctx context.Context, cat category.Category, maxCandidates int) ([]engine.Topic, error)
}

// Approval is the approver's output: the topics cleared for generation plus
// the counts the day's quality rates derive from.
type Approval struct {
	Topics          []engine.Topic
	CandidateCount  int
	DuplicateCount  int
	PolicyFlagCount int
}

// Approver screens candidates down to at most limit approved topics.
type Approver interface {
	Approve(ctx context.Context, topics []engine.Topic, limit int) (Approval, error)
}

// Publisher pushes a day's generated items to the public surface. It is
// only invoked in production mode.
type Publisher interface {
	Publish(ctx context.Context, date dates.Date, items []engine.Item) error
}

// FallbackIngestor serves each category's curated fallback topics. It is
// the deterministic default when no upstream source collector is wired.
type FallbackIngestor struct {
	registry *category.Registry
}

// NewFallbackIngestor returns an ingestor over the registry's fallback
// topic lists.
func NewFallbackIngestor(registry *category.Registry) *FallbackIngestor {
	return &FallbackIngestor{registry: registry}
}

// Fetch returns up to maxCandidates topics for the category.
func (i *FallbackIngestor) Fetch(_ context.Context, cat category.Category, maxCandidates int) ([]engine.Topic, error) {
	titles := cat.FallbackTopics
	if len(titles) > maxCandidates {
		titles = titles[:maxCandidates]
	}

	topics := make([]engine.Topic, 0, len(titles))
	for _, title := range titles {
		topics = append(topics, engine.Topic{
			Category: cat.ID,
			Title:    title,
			Snippet:  "Curated fallback topic.",
		})
	}

	return topics, nil
}

// PassApprover approves candidates in order up to the limit. Duplicate and
// policy screening happen upstream of this controller, so the pass-through
// reports zero for both counts.
type PassApprover struct{}

// Approve implements Approver.
func (PassApprover) Approve(_ context.Context, topics []engine.Topic, limit int) (Approval, error) {
	approved := topics
	if limit >= 0 && len(approved) > limit {
		approved = approved[:limit]
	}

	return Approval{
		Topics:         approved,
		CandidateCount: len(topics),
	}, nil
}

// SitePublisher writes published items under a public directory using the
// /category/<id>/<slug> path scheme.
type SitePublisher struct {
	dir string
}

// NewSitePublisher returns a publisher rooted at dir.
func NewSitePublisher(dir string) *SitePublisher {
	return &SitePublisher{dir: dir}
}

// Publish writes each item's markdown to its public path.
func (p *SitePublisher) Publish(_ context.Context, _ dates.Date, items []engine.Item) error {
	for _, item := range items {
		itemDir := filepath.Join(p.dir, "category", item.Category)

		mkdirErr := os.MkdirAll(itemDir, 0o750)
		if mkdirErr != nil {
			return fmt.Errorf("create publish dir: %w", mkdirErr)
		}

		path := filepath.Join(itemDir, item.Slug+".md")

		writeErr := os.WriteFile(path, []byte(item.Markdown), 0o600)
		if writeErr != nil {
			return fmt.Errorf("publish %s: %w", path, writeErr)
		}
	}

	return nil
}
