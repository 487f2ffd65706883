// Package layout reconstructs reading order from detected text fragments.
//
// Fragments are clustered into lines by vertical proximity, using a tolerance
// that scales with the local text height so that headers, body text and
// footnotes on the same page group correctly. Lines are then read top to
// bottom and fragments within a line left to right.
package layout

import (
	"sort"
	"strings"

	"github.com/jackzampolin/ocrion/internal/region"
)

// Config holds configuration for line clustering.
type Config struct {
	// ToleranceRatio is the fraction of the smaller of the fragment height and
	// the line's mean height within which vertical centers are considered the
	// same line (default: 0.5).
	ToleranceRatio float64
}

// DefaultConfig returns the default clustering configuration.
func DefaultConfig() Config {
	return Config{ToleranceRatio: 0.5}
}

// Orderer turns unordered fragments into reading-order text. It holds no
// mutable state and is safe for concurrent use.
type Orderer struct {
	config Config
}

// New creates an Orderer with the default configuration.
func New() *Orderer {
	return &Orderer{config: DefaultConfig()}
}

// NewWithConfig creates an Orderer with a custom configuration.
func NewWithConfig(config Config) *Orderer {
	if config.ToleranceRatio <= 0 {
		config.ToleranceRatio = DefaultConfig().ToleranceRatio
	}
	return &Orderer{config: config}
}

// Layout is the outcome of ordering one page.
type Layout struct {
	Block region.Block
	// Dropped counts zero-area fragments removed before clustering.
	Dropped int
}

// Text returns the ordered page text.
func (l *Layout) Text() string {
	return l.Block.Text()
}

// Degraded reports whether ordering produced no text at all.
func (l *Layout) Degraded() bool {
	return strings.TrimSpace(l.Block.Text()) == ""
}

// Order returns the ordered text and the lines it was built from.
// Empty or fully degenerate input yields "" and no lines.
func (o *Orderer) Order(fragments []region.TextFragment) (string, []region.Line) {
	l := o.Analyze(fragments)
	return l.Text(), l.Block.Lines
}

// Block returns the page as a single block of ordered lines.
func (o *Orderer) Block(fragments []region.TextFragment) region.Block {
	return o.Analyze(fragments).Block
}

// Analyze clusters fragments into ordered lines.
func (o *Orderer) Analyze(fragments []region.TextFragment) *Layout {
	kept := make([]region.TextFragment, 0, len(fragments))
	for _, f := range fragments {
		if f.Box.Width <= 0 || f.Box.Height <= 0 {
			continue
		}
		kept = append(kept, f)
	}
	out := &Layout{Dropped: len(fragments) - len(kept)}
	if len(kept) == 0 {
		return out
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Box.CenterY() < kept[j].Box.CenterY()
	})

	lines := o.groupIntoLines(kept)

	for i := range lines {
		frags := lines[i].Fragments
		sort.SliceStable(frags, func(a, b int) bool {
			return frags[a].Box.X < frags[b].Box.X
		})
	}
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].CenterY < lines[j].CenterY
	})

	out.Block = region.Block{Lines: lines}
	return out
}

// groupIntoLines walks fragments sorted by vertical center and assigns each
// to the open line or starts a new one.
func (o *Orderer) groupIntoLines(sorted []region.TextFragment) []region.Line {
	var lines []region.Line
	var open *lineStats

	flush := func() {
		if open != nil {
			lines = append(lines, open.line())
		}
	}

	for _, f := range sorted {
		if open != nil && o.belongs(open, f) {
			open.add(f)
			continue
		}
		flush()
		open = &lineStats{}
		open.add(f)
	}
	flush()
	return lines
}

func (o *Orderer) belongs(l *lineStats, f region.TextFragment) bool {
	diff := f.Box.CenterY() - l.center()
	if diff < 0 {
		diff = -diff
	}
	tolerance := o.config.ToleranceRatio * min(f.Box.Height, l.meanHeight())
	if diff > tolerance {
		return false
	}
	// The running mean can drift down a chain of slightly offset fragments;
	// a fragment never shares a line with one it sits clearly below.
	c := f.Box.CenterY()
	for _, m := range l.fragments {
		if c-m.Box.CenterY() > o.config.ToleranceRatio*max(f.Box.Height, m.Box.Height) {
			return false
		}
	}
	return true
}

// lineStats tracks the running statistics of an open line.
type lineStats struct {
	fragments []region.TextFragment
	sumWeight float64
	sumWC     float64 // confidence-weighted centers
	sumC      float64
	sumH      float64
}

func (l *lineStats) add(f region.TextFragment) {
	w := clampConfidence(f.Confidence)
	c := f.Box.CenterY()
	l.fragments = append(l.fragments, f)
	l.sumWeight += w
	l.sumWC += w * c
	l.sumC += c
	l.sumH += f.Box.Height
}

// center is the confidence-weighted mean center, or the plain mean when no
// fragment carries any confidence.
func (l *lineStats) center() float64 {
	if l.sumWeight > 0 {
		return l.sumWC / l.sumWeight
	}
	return l.sumC / float64(len(l.fragments))
}

func (l *lineStats) meanHeight() float64 {
	return l.sumH / float64(len(l.fragments))
}

func (l *lineStats) line() region.Line {
	return region.Line{
		Fragments: l.fragments,
		CenterY:   l.center(),
		Height:    l.meanHeight(),
	}
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

// RawText joins fragment texts in detection order, skipping blank ones. It is
// the fallback text when ordering yields nothing usable.
func RawText(fragments []region.TextFragment) string {
	parts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if t := strings.TrimSpace(f.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
