package rag

import (
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MaxChunkRunes caps a single chunk. Longer blocks are split at a sentence
// or word boundary.
const MaxChunkRunes = 1000

// SplitBlocks cuts extracted text into block-level chunks: paragraphs,
// headings, lists, quotes and code blocks. Text without any block
// structure comes back as one chunk.
func SplitBlocks(content string) []string {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	source := []byte(content)
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	var chunks []string
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		start, stop, ok := blockSpan(n)
		if !ok {
			continue
		}
		// Include list markers, heading hashes and quote markers.
		start = strings.LastIndexByte(content[:start], '\n') + 1
		block := strings.TrimSpace(content[start:stop])
		if block == "" {
			continue
		}
		chunks = append(chunks, splitLong(block, MaxChunkRunes)...)
	}

	if len(chunks) == 0 {
		return splitLong(strings.TrimSpace(content), MaxChunkRunes)
	}
	return chunks
}

// blockSpan returns the byte range covered by the lines of n and its block descendants.
func blockSpan(n ast.Node) (start, stop int, ok bool) {
	if n.Type() != ast.TypeBlock {
		return 0, 0, false
	}
	if lines := n.Lines(); lines != nil && lines.Len() > 0 {
		start, stop, ok = lines.At(0).Start, lines.At(lines.Len()-1).Stop, true
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		s, e, childOK := blockSpan(c)
		if !childOK {
			continue
		}
		if !ok || s < start {
			start = s
		}
		if !ok || e > stop {
			stop = e
		}
		ok = true
	}
	return start, stop, ok
}

func splitLong(block string, limit int) []string {
	runes := []rune(block)
	var parts []string
	for len(runes) > limit {
		cut := findBreakPoint(runes[:limit])
		if part := strings.TrimSpace(string(runes[:cut])); part != "" {
			parts = append(parts, part)
		}
		runes = runes[cut:]
	}
	if rest := strings.TrimSpace(string(runes)); rest != "" {
		parts = append(parts, rest)
	}
	return parts
}

// findBreakPoint prefers a sentence end, then whitespace in the second
// half, then a hard cut.
func findBreakPoint(runes []rune) int {
	for i := len(runes) - 1; i >= len(runes)/2; i-- {
		switch runes[i] {
		case '.', '!', '?', '\n':
			if i == len(runes)-1 || unicode.IsSpace(runes[i+1]) {
				return i + 1
			}
		}
	}
	for i := len(runes) - 1; i >= len(runes)/2; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return len(runes)
}
