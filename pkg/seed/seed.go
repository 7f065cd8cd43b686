// Package seed generates sample notes for manual testing.
package seed

import (
	"fmt"
	"strings"

	"github.com/jaswdr/faker"

	"tempnotes/pkg/models"
)

// Sample is a generated note before it is stored
type Sample struct {
	Notebook string
	Fields   models.NoteFields
	Pinned   bool
	Archived bool
	Trash    bool
}

var snippets = []struct {
	language string
	format   string
}{
	{"go", "package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(%q)\n}\n"},
	{"json", "{\"title\": %q, \"done\": false}"},
	{"css", ".note{color:#333;content:%q}"},
}

// Generator produces random samples from a faker instance
type Generator struct {
	f         faker.Faker
	notebooks []string
}

// NewGenerator returns a generator filing notes under notebooks
func NewGenerator(f faker.Faker, notebooks []string) *Generator {
	if len(notebooks) == 0 {
		notebooks = []string{models.DefaultNotebook}
	}
	return &Generator{f: f, notebooks: notebooks}
}

// Sample returns one random note
func (g *Generator) Sample() Sample {
	lorem := g.f.Lorem()

	s := Sample{
		Notebook: g.f.RandomStringElement(g.notebooks),
		Fields: models.NoteFields{
			Title:    strings.TrimSuffix(lorem.Sentence(g.f.IntBetween(2, 5)), "."),
			Content:  strings.Join(lorem.Paragraphs(g.f.IntBetween(1, 3)), "\n\n"),
			Tags:     append([]string{}, lorem.Words(g.f.IntBetween(0, 3))...),
			Language: models.LanguageText,
		},
	}

	// one in four notes is a code snippet
	if g.f.IntBetween(0, 3) == 0 {
		snippet := snippets[g.f.IntBetween(0, len(snippets)-1)]
		s.Fields.Language = snippet.language
		s.Fields.Content = fmt.Sprintf(snippet.format, lorem.Word())
	}

	switch g.f.IntBetween(0, 9) {
	case 0:
		s.Trash = true
	case 1:
		s.Archived = true
	case 2, 3:
		s.Pinned = true
	}
	return s
}

// Samples returns n random notes
func (g *Generator) Samples(n int) []Sample {
	out := make([]Sample, n)
	for i := range out {
		out[i] = g.Sample()
	}
	return out
}
