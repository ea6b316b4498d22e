// Package format prepares user-supplied text for Telegram parse modes.
package format

import (
	"fmt"
	"strings"
)

const (
	// MarkdownV1 denotes Telegram markdown version 1.
	MarkdownV1 = 1
	// MarkdownV2 denotes Telegram markdown version 2.
	MarkdownV2 = 2
)

// Entity types with their own MarkdownV2 escaping rules.
const (
	EntityPre      = "pre"
	EntityCode     = "code"
	EntityTextLink = "text_link"
)

const (
	mdV1Specials = "_*`["
	mdV2Specials = "_*[]()~`>#+-=|{}.!\\"
)

// EscapeMarkdown escapes special characters for MarkdownV1 or V2. For V2,
// entityType narrows the set inside pre/code blocks and link URLs.
func EscapeMarkdown(text string, version int, entityType string) (string, error) {
	switch version {
	case MarkdownV1:
		return escapeSet(text, mdV1Specials), nil
	case MarkdownV2:
		switch entityType {
		case EntityPre, EntityCode:
			return escapeSet(text, "`\\"), nil
		case EntityTextLink:
			return escapeSet(text, ")\\"), nil
		}
		return escapeSet(text, mdV2Specials), nil
	}
	return "", fmt.Errorf("unsupported markdown version: %d", version)
}

// EscapeV2 escapes plain text for MarkdownV2.
func EscapeV2(text string) string {
	return escapeSet(text, mdV2Specials)
}

func escapeSet(text, specials string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if strings.ContainsRune(specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
