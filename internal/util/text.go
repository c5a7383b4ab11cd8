// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package util

import (
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
)

// stopWords holds Spanish and English function words ignored by token scoring.
// Entries are stored folded (lowercase, no accents).
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		a al algo algunas algunos ante antes como con contra cual cuales cuando de del desde
		donde durante e el ella ellas ellos en entre era es esa esas ese eso esos esta estas
		este esto estos fue ha hay la las le les lo los mas me mi mis muy nos o para pero
		por porque que se sin sobre su sus tambien te tu tus un una unas uno unos y ya yo
		an and are as at be by for from has how in is it its of on or that the this to was
		what when where which who why will with your you`) {
		stopWords[w] = struct{}{}
	}
}

// IsStopWord reports whether a folded token is a stop word.
func IsStopWord(token string) bool {
	_, ok := stopWords[token]
	return ok
}

// Fold lowercases s and transliterates it to ASCII ("Guía" -> "guia").
func Fold(s string) string {
	return strings.ToLower(unidecode.Unidecode(s))
}

// Tokenize splits s into folded word tokens, dropping stop words and
// single-character tokens. Order is preserved and duplicates are kept.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) < 2 || IsStopWord(f) {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// TokenSet returns the distinct tokens of all parts.
func TokenSet(parts ...string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, p := range parts {
		for _, tok := range Tokenize(p) {
			set[tok] = struct{}{}
		}
	}
	return set
}

// Truncate shortens s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return strings.TrimSpace(string(r[:n-3])) + "..."
}
