package cli

import (
	"fmt"
	"strings"

	"devotional/internal/core"
)

const dateLayout = "January 2, 2006"

// renderDevotional formats d for a terminal.
func renderDevotional(d *core.Devotional) string {
	var b strings.Builder
	r := d.Record

	fmt.Fprintf(&b, "%s\n", r.Title)
	if r.Subtitle != "" {
		fmt.Fprintf(&b, "%s\n", r.Subtitle)
	}
	fmt.Fprintf(&b, "\n%s\n\"%s\"\n", r.Reference, r.VerseText)

	section := func(title, body string) {
		if body == "" {
			return
		}
		fmt.Fprintf(&b, "\n%s\n%s\n", title, body)
	}
	section("Background", r.ContextualBackground)
	section("Historical insights", r.HistoricalInsights)
	section("Linguistic insights", r.LinguisticInsights)
	section("Modern relevance", r.ModernRelevance)

	if len(r.ReflectionQuestions) > 0 {
		b.WriteString("\nReflection questions\n")
		for i, q := range r.ReflectionQuestions {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, q)
		}
	}
	section("Prayer", r.Prayer)

	fmt.Fprintf(&b, "\n[%s]\n", provenanceLabel(d.Provenance))
	return b.String()
}

func provenanceLabel(p core.Provenance) string {
	saved := ""
	if p.CachedAt != nil {
		saved = " " + p.CachedAt.Local().Format(dateLayout)
	}
	switch p.Source {
	case core.ProvenanceCached:
		return "cached" + saved
	case core.ProvenanceStaleOffline:
		return "offline, saved" + saved
	default:
		return "fresh"
	}
}
