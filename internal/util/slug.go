// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package util provides general-purpose text helpers: URL slugs, token
// normalization for overlap scoring, and HTML/markdown conversion.
package util

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxSlugLength caps generated slugs; longer slugs are cut at a hyphen boundary.
const MaxSlugLength = 80

var (
	// slugRegex matches non-alphanumeric characters (except hyphens)
	slugRegex = regexp.MustCompile(`[^a-z0-9-]+`)
	// multipleHyphens matches multiple consecutive hyphens
	multipleHyphens = regexp.MustCompile(`-{2,}`)
)

// Slugify converts a string to a URL-friendly slug.
// It converts to lowercase, removes accents, replaces spaces with hyphens,
// and removes all non-alphanumeric characters except hyphens.
func Slugify(s string) string {
	// Decompose accents ("guía" -> "guia", "ñ" -> "n")
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)

	result = strings.ToLower(result)
	result = strings.ReplaceAll(result, " ", "-")
	result = slugRegex.ReplaceAllString(result, "")
	result = multipleHyphens.ReplaceAllString(result, "-")
	result = strings.Trim(result, "-")

	if len(result) > MaxSlugLength {
		result = result[:MaxSlugLength]
		if i := strings.LastIndex(result, "-"); i > MaxSlugLength/2 {
			result = result[:i]
		}
		result = strings.Trim(result, "-")
	}

	return result
}

// IsValidSlug checks if a string is a valid slug format.
func IsValidSlug(s string) bool {
	if s == "" {
		return false
	}

	for _, r := range s {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-') {
			return false
		}
	}

	if s[0] == '-' || s[len(s)-1] == '-' {
		return false
	}

	return !strings.Contains(s, "--")
}

// UniqueSlug returns base, or base suffixed with "-2", "-3", ... until taken
// reports false. It gives up after maxAttempts and returns the last candidate
// together with false.
func UniqueSlug(base string, maxAttempts int, taken func(string) (bool, error)) (string, bool, error) {
	candidate := base
	for i := 1; i <= maxAttempts; i++ {
		if i > 1 {
			candidate = base + "-" + strconv.Itoa(i)
		}
		exists, err := taken(candidate)
		if err != nil {
			return "", false, err
		}
		if !exists {
			return candidate, true, nil
		}
	}
	return candidate, false, nil
}
