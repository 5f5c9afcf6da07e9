package imagerecord

import (
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"featurestore/types"

	"github.com/pkg/errors"
)

type matchesDocument struct {
	XMLName xml.Name    `xml:"matches"`
	Pairs   []pairsNode `xml:"pairs"`
}

type pairsNode struct {
	Text string `xml:",chardata"`
}

// FormatPairs renders pairs as "(i1, i2), (i1, i2)". An empty slice renders
// as the empty string.
func FormatPairs(pairs []types.IndexPair) string {
	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		b.WriteString(strconv.Itoa(p.Query))
		b.WriteString(", ")
		b.WriteString(strconv.Itoa(p.Train))
		b.WriteByte(')')
	}
	return b.String()
}

// ParsePairs is the inverse of FormatPairs. Whitespace between tokens is
// ignored and blank text yields an empty, non-nil slice.
func ParsePairs(text string) ([]types.IndexPair, error) {
	p := pairParser{text: text}
	pairs := []types.IndexPair{}

	p.skipSpace()
	if p.done() {
		return pairs, nil
	}
	for {
		pair, err := p.pair()
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)

		p.skipSpace()
		if p.done() {
			return pairs, nil
		}
		if err := p.expect(','); err != nil {
			return nil, err
		}
		p.skipSpace()
	}
}

type pairParser struct {
	text string
	pos  int
}

func (p *pairParser) done() bool { return p.pos >= len(p.text) }

func (p *pairParser) skipSpace() {
	for !p.done() {
		switch p.text[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *pairParser) expect(c byte) error {
	if p.done() {
		return errors.Errorf("offset %d: want %q, got end of text", p.pos, c)
	}
	if p.text[p.pos] != c {
		return errors.Errorf("offset %d: want %q, got %q", p.pos, c, p.text[p.pos])
	}
	p.pos++
	return nil
}

func (p *pairParser) integer() (int, error) {
	start := p.pos
	if !p.done() && p.text[p.pos] == '-' {
		p.pos++
	}
	for !p.done() && p.text[p.pos] >= '0' && p.text[p.pos] <= '9' {
		p.pos++
	}
	v, err := strconv.Atoi(p.text[start:p.pos])
	if err != nil {
		return 0, errors.Errorf("offset %d: want integer, got %q", start, p.text[start:p.pos])
	}
	return v, nil
}

func (p *pairParser) pair() (types.IndexPair, error) {
	var pair types.IndexPair
	var err error

	if err = p.expect('('); err != nil {
		return pair, err
	}
	p.skipSpace()
	if pair.Query, err = p.integer(); err != nil {
		return pair, err
	}
	p.skipSpace()
	if err = p.expect(','); err != nil {
		return pair, err
	}
	p.skipSpace()
	if pair.Train, err = p.integer(); err != nil {
		return pair, err
	}
	p.skipSpace()
	if err = p.expect(')'); err != nil {
		return pair, err
	}
	return pair, nil
}

// EncodeMatches writes one <pairs> element per match entry, in order
func EncodeMatches(w io.Writer, matches types.MatchList) error {
	doc := matchesDocument{Pairs: make([]pairsNode, len(matches))}
	for i, entry := range matches {
		doc.Pairs[i] = pairsNode{Text: FormatPairs(entry)}
	}
	return writeIndented(w, doc)
}

// DecodeMatches reads a matches document. A <pairs> element without text is
// an empty entry.
func DecodeMatches(r io.Reader) (types.MatchList, error) {
	var doc matchesDocument
	if err := newDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "malformed matches document")
	}

	matches := make(types.MatchList, 0, len(doc.Pairs))
	for i, node := range doc.Pairs {
		pairs, err := ParsePairs(node.Text)
		if err != nil {
			return nil, errors.Wrapf(err, "pairs %d", i)
		}
		matches = append(matches, pairs)
	}
	return matches, nil
}
