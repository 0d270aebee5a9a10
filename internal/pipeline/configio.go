package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/banshee-data/nmrbrew/internal/config"
)

// ExportConfiguration snapshots the core annotations and every stage's
// options into a new document.
func (p *Pipeline) ExportConfiguration() (*config.Document, error) {
	doc := config.NewDocument(p.cfg.GetClock().Now())
	doc.Core = p.cfg.Core()
	for _, s := range p.stages {
		raw, err := json.Marshal(s.Options())
		if err != nil {
			return nil, fmt.Errorf("%s: failed to encode options: %w", s.Key(), err)
		}
		doc.Tools[s.Key()] = raw
	}
	return doc, nil
}

// ImportReport lists what ImportConfiguration did with each stage.
type ImportReport struct {
	// Applied stages had their options replaced from the document.
	Applied []string
	// Disabled stages were absent from the document.
	Disabled []string
	// Unknown keys in the document matched no stage and were ignored.
	Unknown []string
	// Failed stages kept their previous options.
	Failed map[string]error
}

// Err joins the per-stage failures, nil when every known stage applied.
func (r *ImportReport) Err() error {
	keys := make([]string, 0, len(r.Failed))
	for k := range r.Failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	errs := make([]error, 0, len(keys))
	for _, k := range keys {
		errs = append(errs, r.Failed[k])
	}
	return errors.Join(errs...)
}

// ImportConfiguration applies doc: the core block replaces the context's
// annotations, each known stage merges its options and is enabled or
// disabled from is_active, and stages absent from doc are disabled. Unknown
// stage keys and per-stage failures are reported, never fatal. Auto-run is
// suspended while the document is applied.
func (p *Pipeline) ImportConfiguration(ctx context.Context, doc *config.Document) (*ImportReport, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: no document", config.ErrInvalidConfig)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	p.quiet.Add(1)
	defer p.quiet.Add(-1)

	p.cfg.SetCore(doc.Core)
	report := &ImportReport{Failed: map[string]error{}}

	keys := make([]string, 0, len(doc.Tools))
	for k := range doc.Tools {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		s, ok := p.byKey[key]
		if !ok {
			opsf("configuration: ignoring unknown stage %q", key)
			report.Unknown = append(report.Unknown, key)
			continue
		}
		if err := s.SetMany(ctx, doc.Tools[key]); err != nil {
			opsf("configuration: %v", err)
			report.Failed[key] = err
			continue
		}
		report.Applied = append(report.Applied, key)
	}

	for _, s := range p.stages {
		if _, ok := doc.Tools[s.Key()]; ok {
			continue
		}
		if err := s.Disable(); err != nil {
			diagf("configuration: %s absent but kept enabled: %v", s.Key(), err)
			continue
		}
		report.Disabled = append(report.Disabled, s.Key())
	}
	diagf("configuration: applied %d stages, disabled %d, ignored %d unknown, %d failed",
		len(report.Applied), len(report.Disabled), len(report.Unknown), len(report.Failed))
	return report, nil
}
