// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package util

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

var (
	// contentPolicy allows the markup expected in generated page bodies.
	// Internal links stay followable.
	contentPolicy = func() *bluemonday.Policy {
		p := bluemonday.UGCPolicy()
		p.RequireNoFollowOnLinks(false)
		return p
	}()
	stripPolicy = bluemonday.StrictPolicy()
)

// MarkdownToHTML renders markdown to HTML.
func MarkdownToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return buf.String(), nil
}

// SanitizeHTML removes unsafe markup from generated HTML.
func SanitizeHTML(s string) string {
	return contentPolicy.Sanitize(s)
}

// PlainText strips all markup from s and collapses whitespace.
func PlainText(s string) string {
	text := html.UnescapeString(stripPolicy.Sanitize(s))
	return strings.Join(strings.Fields(text), " ")
}

// LooksLikeHTML reports whether s appears to already be HTML rather than markdown.
func LooksLikeHTML(s string) bool {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "<") {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, tag := range []string{"<p", "<h2", "<h3", "<div", "<section", "<ul", "<ol", "<article"} {
		if strings.HasPrefix(lower, tag) {
			return true
		}
	}
	return false
}

// RenderBody converts a generated body to sanitized HTML, rendering markdown
// when the body is not already HTML.
func RenderBody(body string) (string, error) {
	out := body
	if !LooksLikeHTML(body) {
		rendered, err := MarkdownToHTML(body)
		if err != nil {
			return "", err
		}
		out = rendered
	}
	return strings.TrimSpace(SanitizeHTML(out)), nil
}
