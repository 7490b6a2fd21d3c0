// Package parser reads markdown deck files. A deck is a sequence of blocks:
//
//	Q: phrase
//	A: translation
//	C: example sentence
//	N: note
//
// Each prefix may be followed by continuation lines. A new Q: or a line
// holding only --- ends the current block.
package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/growfluent/internal/domain"
)

const separator = "---"

type field int

const (
	none field = iota
	phrase
	translation
	example
	note
)

var prefixes = []struct {
	prefix string
	field  field
}{
	{"Q:", phrase},
	{"A:", translation},
	{"C:", example},
	{"N:", note},
}

// ParseFile reads the deck at path.
func ParseFile(path string) ([]domain.DeckEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads deck entries from r. Blocks without a phrase are ignored.
func Parse(r io.Reader) ([]domain.DeckEntry, error) {
	p := &deckParser{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.line(scanner.Text())
	}
	p.finishEntry()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return p.entries, nil
}

type deckParser struct {
	entries []domain.DeckEntry
	current domain.DeckEntry
	field   field
	block   []string
}

func (p *deckParser) line(line string) {
	if strings.TrimSpace(line) == separator {
		p.finishEntry()
		return
	}
	for _, pf := range prefixes {
		if !strings.HasPrefix(line, pf.prefix) {
			continue
		}
		p.flushBlock()
		if pf.field == phrase && p.field != none {
			p.finishEntry()
		}
		p.field = pf.field
		p.block = append(p.block, strings.TrimPrefix(line[len(pf.prefix):], " "))
		return
	}
	if p.field != none {
		p.block = append(p.block, line)
	}
}

// flushBlock stores the collected lines in the field being read.
func (p *deckParser) flushBlock() {
	if len(p.block) == 0 {
		return
	}
	content := strings.TrimSpace(strings.Join(p.block, "\n"))
	switch p.field {
	case phrase:
		p.current.Phrase = content
	case translation:
		p.current.Translation = content
	case example:
		p.current.Example = content
	case note:
		p.current.Note = content
	}
	p.block = nil
}

func (p *deckParser) finishEntry() {
	p.flushBlock()
	if p.current.Phrase != "" {
		p.entries = append(p.entries, p.current)
	}
	p.current = domain.DeckEntry{}
	p.field = none
}
