package search

import (
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// maxCorpusRunes caps the text sent to the embedding model. Consolidated
// transcripts can run long; the opening segments carry the naming and topic
// signal that matching needs.
const maxCorpusRunes = 1500

var corpusParser = goldmark.New()

// ExtractCorpus strips markdown structure from a consolidated transcript and
// returns plain text suitable for embedding. Headings and prose are kept,
// formatting is dropped.
func ExtractCorpus(content []byte) string {
	if len(content) == 0 {
		return ""
	}

	doc := corpusParser.Parser().Parse(text.NewReader(content))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := n.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(content))
		case *ast.String:
			b.Write(v.Value)
		case *ast.Heading, *ast.Paragraph, *ast.ListItem:
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})

	corpus := strings.TrimSpace(b.String())
	if utf8.RuneCountInString(corpus) > maxCorpusRunes {
		corpus = string([]rune(corpus)[:maxCorpusRunes])
	}
	return corpus
}
