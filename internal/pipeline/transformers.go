package pipeline

import (
	"regexp"
	"strings"

	"github.com/starford/contentstore/internal/content"
)

var (
	wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)
	commentRe  = regexp.MustCompile(`(?s)<!--.*?-->`)
)

func simpleTransformer(fn func(string) string) TransformerFactory {
	return func(ref, _ string) (content.Transformer, error) {
		return content.TransformerFunc(ref, fn), nil
	}
}

func normalizeNewlines(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	return strings.ReplaceAll(body, "\r", "\n")
}

func stripComments(body string) string {
	return commentRe.ReplaceAllString(body, "")
}

// wikilinks rewrites [[Target]] and [[Target|Alias]] into Markdown links.
// Empty targets are left untouched.
func wikilinks(body string) string {
	return wikilinkRe.ReplaceAllStringFunc(body, func(m string) string {
		raw := wikilinkRe.FindStringSubmatch(m)[1]
		target, label := raw, raw
		if i := strings.Index(raw, "|"); i >= 0 {
			target, label = raw[:i], raw[i+1:]
		}
		target, label = strings.TrimSpace(target), strings.TrimSpace(label)
		if target == "" {
			return m
		}
		if label == "" {
			label = target
		}
		return "[" + label + "](" + strings.ReplaceAll(target, " ", "%20") + ")"
	})
}
