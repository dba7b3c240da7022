package server

import (
	"context"
	"strings"
	"unicode"

	"secure_chat/internal/model"
)

// ContentFilter decides which parts of a message a filtering recipient must not see.
type ContentFilter interface {
	Filter(ctx context.Context, text string) (model.FilterMask, error)
}

// WordFilter masks case-insensitive occurrences of blocked words. Text made only of blocked
// words is fully filtered.
type WordFilter struct {
	words [][]rune
}

func NewWordFilter(words []string) *WordFilter {
	f := &WordFilter{}
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		f.words = append(f.words, []rune(strings.ToLower(w)))
	}
	return f
}

func (f *WordFilter) Filter(_ context.Context, text string) (model.FilterMask, error) {
	if len(f.words) == 0 {
		return model.PassThroughMask, nil
	}

	runes := []rune(strings.ToLower(text))
	var positions []int
	for i := range runes {
		for _, w := range f.words {
			if hasPrefixAt(runes, i, w) {
				for j := range w {
					positions = append(positions, i+j)
				}
			}
		}
	}
	if len(positions) == 0 {
		return model.PassThroughMask, nil
	}

	mask := model.NewPartialMask(positions...)
	for i, r := range runes {
		if !unicode.IsSpace(r) && !mask.IsMasked(i) {
			return mask, nil
		}
	}
	return model.FullyFilteredMask, nil
}

func hasPrefixAt(runes []rune, at int, word []rune) bool {
	if at+len(word) > len(runes) {
		return false
	}
	for j, r := range word {
		if runes[at+j] != r {
			return false
		}
	}
	return true
}
