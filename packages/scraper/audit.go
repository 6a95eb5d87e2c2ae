package scraper

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"eventcrawler/packages/domain"
)

// Auditor writes crawl artifacts to a well-known directory for humans and
// debugging tooling. Nothing downstream reads these files, so write failures
// are logged and otherwise ignored.
type Auditor struct {
	dir string
}

func NewAuditor(dir string) *Auditor {
	if err := os.MkdirAll(dir, 0750); err != nil {
		slog.Error("Failed to create audit directory", "path", dir, "error", err)
	}
	return &Auditor{dir: dir}
}

type sourceArtifact struct {
	Source    string                `json:"source"`
	ScrapedAt time.Time             `json:"scraped_at"`
	Count     int                   `json:"count"`
	Events    []domain.CrawledEvent `json:"events"`
}

// WriteSource dumps one extractor's raw output.
func (a *Auditor) WriteSource(source string, events []domain.CrawledEvent) {
	artifact := sourceArtifact{
		Source:    source,
		ScrapedAt: time.Now(),
		Count:     len(events),
		Events:    events,
	}
	a.write(source+"-events.json", artifact)
}

type runArtifact struct {
	Summary        domain.RunSummary     `json:"summary"`
	AcceptanceRate float64               `json:"acceptance_rate"`
	Accepted       []domain.CrawledEvent `json:"accepted"`
	Rejected       []domain.CrawledEvent `json:"rejected"`
}

// WriteRun dumps the aggregate pass: counts, acceptance rate, and both
// partitions of the filtered set.
func (a *Auditor) WriteRun(summary domain.RunSummary, accepted, rejected []domain.CrawledEvent) {
	rate := 0.0
	if summary.Scraped > 0 {
		rate = float64(summary.Accepted) / float64(summary.Scraped)
	}
	artifact := runArtifact{
		Summary:        summary,
		AcceptanceRate: rate,
		Accepted:       accepted,
		Rejected:       rejected,
	}
	a.write("run-"+summary.RunID+".json", artifact)
}

func (a *Auditor) write(name string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal audit artifact", "file", name, "error", err)
		return
	}
	path := filepath.Join(a.dir, name)
	if err := os.WriteFile(path, data, 0640); err != nil {
		slog.Error("Failed to write audit artifact", "path", path, "error", err)
		return
	}
	slog.Debug("Wrote audit artifact", "path", path)
}
