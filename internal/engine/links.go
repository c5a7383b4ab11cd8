// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	stdhtml "html"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// Text inside these elements is never turned into a link.
var noLinkTags = map[string]bool{
	"a": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"script": true, "style": true, "code": true, "pre": true, "button": true,
}

// tokenWalk calls fn for every token of body with its raw text, reassembling
// the output from what fn returns. Concatenating the raw tokens reproduces
// body byte for byte.
func tokenWalk(body string, fn func(tt html.TokenType, z *html.Tokenizer, raw string) string) string {
	z := html.NewTokenizer(strings.NewReader(body))
	var out strings.Builder
	out.Grow(len(body) + 128)
	for {
		tt := z.Next()
		raw := string(z.Raw())
		if tt == html.ErrorToken {
			out.WriteString(raw)
			break
		}
		out.WriteString(fn(tt, z, raw))
	}
	return out.String()
}

// linkFirstMention wraps the first whole-word, case-insensitive occurrence
// of phrase outside links and headings with a link to href.
func linkFirstMention(body, phrase, href string) (string, bool) {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" || body == "" {
		return body, false
	}
	pattern, err := regexp.Compile(`(?i)` + phrasePattern(phrase))
	if err != nil {
		return body, false
	}

	depth := 0
	done := false
	out := tokenWalk(body, func(tt html.TokenType, z *html.Tokenizer, raw string) string {
		switch tt {
		case html.StartTagToken:
			name, _ := z.TagName()
			if noLinkTags[string(name)] {
				depth++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if noLinkTags[string(name)] && depth > 0 {
				depth--
			}
		case html.TextToken:
			if !done && depth == 0 {
				if replaced, ok := wrapFirst(raw, pattern, href); ok {
					done = true
					return replaced
				}
			}
		}
		return raw
	})
	return out, done
}

// entityForms lists how a character may appear in raw HTML text, literal
// or as a character reference.
var entityForms = map[rune][]string{
	'&':  {"&amp;", "&#38;", "&#x26;", "&"},
	'<':  {"&lt;", "&#60;", "&#x3c;"},
	'>':  {"&gt;", "&#62;", "&#x3e;", ">"},
	'"':  {"&quot;", "&#34;", "&#x22;", `"`},
	'\'': {"&#39;", "&#x27;", "&apos;", "'"},
}

// phrasePattern matches phrase in raw HTML text whether its special
// characters are written literally or escaped.
func phrasePattern(phrase string) string {
	var sb strings.Builder
	for _, r := range phrase {
		forms, ok := entityForms[r]
		if !ok {
			sb.WriteString(regexp.QuoteMeta(string(r)))
			continue
		}
		sb.WriteString("(?:")
		for i, f := range forms {
			if i > 0 {
				sb.WriteByte('|')
			}
			sb.WriteString(regexp.QuoteMeta(f))
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

func wrapFirst(text string, pattern *regexp.Regexp, href string) (string, bool) {
	for _, loc := range pattern.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if start > 0 {
			if r, _ := utf8.DecodeLastRuneInString(text[:start]); isWordRune(r) {
				continue
			}
		}
		if end < len(text) {
			if r, _ := utf8.DecodeRuneInString(text[end:]); isWordRune(r) {
				continue
			}
		}
		return text[:start] + anchor(href, text[start:end]) + text[end:], true
	}
	return text, false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// anchor builds a link; label must already be escaped.
func anchor(href, label string) string {
	return `<a href="` + stdhtml.EscapeString(href) + `">` + label + `</a>`
}

// insertAtSectionEnd places snippet at the end of the first section: before
// the first <h2> that follows other content, or at the end of the body.
func insertAtSectionEnd(body, snippet string) string {
	seenContent := false
	inserted := false
	out := tokenWalk(body, func(tt html.TokenType, z *html.Tokenizer, raw string) string {
		if inserted {
			return raw
		}
		switch tt {
		case html.StartTagToken:
			if name, _ := z.TagName(); string(name) == "h2" && seenContent {
				inserted = true
				return snippet + "\n" + raw
			}
			seenContent = true
		case html.TextToken:
			if strings.TrimSpace(raw) != "" {
				seenContent = true
			}
		case html.SelfClosingTagToken, html.EndTagToken:
			seenContent = true
		}
		return raw
	})
	if inserted {
		return out
	}
	return strings.TrimRight(body, " \t\r\n") + "\n" + snippet
}

// hrefs returns the href of every link in body.
func hrefs(body string) []string {
	var out []string
	z := html.NewTokenizer(strings.NewReader(body))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return out
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, hasAttr := z.TagName()
		if string(name) != "a" {
			continue
		}
		for hasAttr {
			var key, val []byte
			key, val, hasAttr = z.TagAttr()
			if string(key) == "href" {
				out = append(out, string(val))
			}
		}
	}
}

// linkPath reduces an href to its path without a trailing slash.
func linkPath(href string) string {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(u.Path, "/")
}

// hasLink reports whether body links to target.
func hasLink(body, target string) bool {
	want := linkPath(target)
	for _, h := range hrefs(body) {
		if linkPath(h) == want {
			return true
		}
	}
	return false
}

// linkedSlugs returns the slugs of links in body under prefix, in order.
func linkedSlugs(body, prefix string) []string {
	prefix = strings.TrimSuffix(prefix, "/") + "/"
	var out []string
	for _, h := range hrefs(body) {
		p := linkPath(h)
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		slug, _, _ := strings.Cut(strings.TrimPrefix(p, prefix), "/")
		if slug != "" {
			out = append(out, slug)
		}
	}
	return out
}
