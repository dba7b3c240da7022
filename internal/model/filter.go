package model

import (
	"strings"
)

type FilterKind uint8

const (
	PassThrough FilterKind = iota
	FullyFiltered
	PartiallyFiltered
)

func (k FilterKind) String() string {
	switch k {
	case PassThrough:
		return "pass_through"
	case FullyFiltered:
		return "fully_filtered"
	case PartiallyFiltered:
		return "partially_filtered"
	default:
		return "unknown"
	}
}

// FilterMask marks which runes of a message's display text are hidden from a recipient.
type FilterMask struct {
	Kind  FilterKind `json:"kind"`
	Words []uint64   `json:"words,omitempty"`
}

var (
	PassThroughMask   = FilterMask{Kind: PassThrough}
	FullyFilteredMask = FilterMask{Kind: FullyFiltered}
)

// NewPartialMask builds a mask over the given rune positions. An empty set passes through.
func NewPartialMask(positions ...int) FilterMask {
	m := FilterMask{Kind: PartiallyFiltered}
	for _, p := range positions {
		m.set(p)
	}
	if len(m.Words) == 0 {
		return PassThroughMask
	}
	return m
}

func (m *FilterMask) set(pos int) {
	if pos < 0 {
		return
	}
	w := pos / 64
	for len(m.Words) <= w {
		m.Words = append(m.Words, 0)
	}
	m.Words[w] |= 1 << uint(pos%64)
}

func (m FilterMask) IsMasked(pos int) bool {
	if pos < 0 {
		return false
	}
	w := pos / 64
	if w >= len(m.Words) {
		return false
	}
	return m.Words[w]&(1<<uint(pos%64)) != 0
}

func (m FilterMask) IsFullyFiltered() bool {
	return m.Kind == FullyFiltered
}

func (m FilterMask) IsEmpty() bool {
	return m.Kind == PassThrough
}

func (m FilterMask) Equal(other FilterMask) bool {
	if m.Kind != other.Kind || len(m.Words) != len(other.Words) {
		return false
	}
	for i := range m.Words {
		if m.Words[i] != other.Words[i] {
			return false
		}
	}
	return true
}

// Apply returns the visible text; fully filtered text becomes empty.
func (m FilterMask) Apply(text string) string {
	switch m.Kind {
	case PassThrough:
		return text
	case FullyFiltered:
		return ""
	}

	var sb strings.Builder
	i := 0
	for _, r := range text {
		if m.IsMasked(i) {
			sb.WriteRune('#')
		} else {
			sb.WriteRune(r)
		}
		i++
	}
	return sb.String()
}
