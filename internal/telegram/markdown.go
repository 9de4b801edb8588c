package telegram

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"
)

// mdv2Special matches every character MarkdownV2 requires escaping.
var mdv2Special = regexp.MustCompile(`([_*\[\]()~` + "`" + `>#+\-=|{}.!])`)

func escapeMDV2(s string) string {
	return mdv2Special.ReplaceAllString(s, `\$1`)
}

var (
	codeBlockPat  = regexp.MustCompile("```[\\s\\S]*?```")
	inlineCodePat = regexp.MustCompile("`[^`\n]+`")
	linkPat       = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	headingPat    = regexp.MustCompile(`(?m)^\s*#{1,6}\s*(.+)$`)
	boldStarPat   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	boldUnderPat  = regexp.MustCompile(`__(.+?)__`)
	italicPat     = regexp.MustCompile(`_([^_]+)_`)
	strikePat     = regexp.MustCompile(`~~(.+?)~~`)
	bulletPat     = regexp.MustCompile(`(?m)^[ \t]*[-*]\s+`)
	quotePat      = regexp.MustCompile(`(?m)^[ \t]*>\s?`)
)

// ToMarkdownV2 converts standard Markdown into Telegram MarkdownV2.
// Code spans, links, and converted entities are protected behind
// placeholders while the remaining text is escaped, then restored.
func ToMarkdownV2(md string) string {
	placeholders := make(map[string]string)
	pid := 0
	put := func(val string) string {
		key := fmt.Sprintf("\x00PH%d\x00", pid)
		placeholders[key] = val
		pid++
		return key
	}

	text := codeBlockPat.ReplaceAllStringFunc(md, put)
	text = inlineCodePat.ReplaceAllStringFunc(text, put)

	text = linkPat.ReplaceAllStringFunc(text, func(m string) string {
		parts := linkPat.FindStringSubmatch(m)
		label := escapeMDV2(parts[1])
		u := strings.NewReplacer("(", `\(`, ")", `\)`).Replace(parts[2])
		return put("[" + label + "](" + u + ")")
	})

	text = headingPat.ReplaceAllStringFunc(text, func(m string) string {
		body := strings.TrimSpace(headingPat.FindStringSubmatch(m)[1])
		return put("*" + escapeMDV2(body) + "*")
	})

	wrap := func(pat *regexp.Regexp, mark string) {
		text = pat.ReplaceAllStringFunc(text, func(m string) string {
			inner := pat.FindStringSubmatch(m)[1]
			return put(mark + escapeMDV2(inner) + mark)
		})
	}
	wrap(boldStarPat, "*")
	wrap(boldUnderPat, "*")
	wrap(italicPat, "_")
	wrap(strikePat, "~")

	text = bulletPat.ReplaceAllString(text, "• ")
	text = quotePat.ReplaceAllString(text, `\> `)

	text = escapeMDV2(text)

	for k, v := range placeholders {
		text = strings.Replace(text, k, v, 1)
	}
	return text
}

// mdRenderer converts standard Markdown to HTML once; Telegram then
// needs the block-level tags flattened to the small set it accepts.
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

var (
	paraOpenPat  = regexp.MustCompile(`<p[^>]*>`)
	listItemPat  = regexp.MustCompile(`<li[^>]*>`)
	headOpenPat  = regexp.MustCompile(`<h[1-6][^>]*>`)
	headClosePat = regexp.MustCompile(`</h[1-6]>`)
	dropTagPat   = regexp.MustCompile(`</?(?:p|ul|ol|li|br|hr|blockquote|table|thead|tbody|tr|th|td)[^>]*>`)
)

// ToHTML converts Markdown into Telegram-safe HTML: the inline tags
// Telegram supports are kept, block structure becomes plain newlines
// and bullets.
func ToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	out := buf.String()

	out = strings.ReplaceAll(out, "<strong>", "<b>")
	out = strings.ReplaceAll(out, "</strong>", "</b>")
	out = strings.ReplaceAll(out, "<em>", "<i>")
	out = strings.ReplaceAll(out, "</em>", "</i>")
	out = strings.ReplaceAll(out, "<del>", "<s>")
	out = strings.ReplaceAll(out, "</del>", "</s>")

	out = headOpenPat.ReplaceAllString(out, "<b>")
	out = headClosePat.ReplaceAllString(out, "</b>\n")
	out = strings.ReplaceAll(out, "</p>", "\n")
	out = paraOpenPat.ReplaceAllString(out, "")
	out = listItemPat.ReplaceAllString(out, "• ")
	out = strings.ReplaceAll(out, "</li>", "\n")
	out = dropTagPat.ReplaceAllString(out, "")

	return strings.TrimSpace(out), nil
}
