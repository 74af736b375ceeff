// Package prompt renders the devotional generation prompt.
package prompt

import (
	_ "embed"
	"strconv"
	"strings"
	"time"

	"devotional/internal/core"
)

//go:embed devotional_prompt.txt
var defaultTemplate string

// DateLayout is the long date style used for {today}.
const DateLayout = "January 2, 2006"

// Builder fills a template with a verse and a date.
type Builder struct {
	template string
}

// New returns a Builder for template. An empty template selects the
// embedded default.
func New(template string) *Builder {
	if strings.TrimSpace(template) == "" {
		template = defaultTemplate
	}
	return &Builder{template: template}
}

// Default returns a Builder for the embedded template.
func Default() *Builder {
	return New("")
}

// Template returns the raw template text.
func (b *Builder) Template() string {
	return b.template
}

// Build substitutes every placeholder. Placeholders not present in the
// template are ignored and unknown braces are left alone.
func (b *Builder) Build(verse core.Verse, today time.Time) string {
	r := strings.NewReplacer(
		"{bookDisplay}", verse.Reference.Book,
		"{chapter}", strconv.Itoa(verse.Reference.Chapter),
		"{verse}", strconv.Itoa(verse.Reference.Verse),
		"{verseText}", verse.Text,
		"{today}", today.Format(DateLayout),
	)
	return r.Replace(b.template)
}
