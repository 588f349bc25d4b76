package ui

import (
	"fmt"
	"regexp"
	"strings"

	markdown "github.com/MichaelMure/go-term-markdown"
	gomarkdown "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/parser"
	"github.com/mattn/go-runewidth"

	"habitcoach/model"
)

var (
	inlineCodeRegex = regexp.MustCompile(`(?s)\x1b\[44;3m(.*?)\x1b\[0m`)
	mdLinkRegex     = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\)]+)\)`)
	ansiRegex       = regexp.MustCompile(`\x1b\[[0-9;]*m`)
)

const minRenderWidth = 20

// renderMarkdown renders a coach reply for a terminal of the given width.
// Autolink is disabled so terminals handle URL detection themselves.
func renderMarkdown(content string, width int) string {
	w := width - 4
	if w < minRenderWidth {
		w = minRenderWidth
	}

	content = mdLinkRegex.ReplaceAllString(content, "$2")

	p := parser.NewWithExtensions(markdown.Extensions() &^ parser.Autolink)
	r := markdown.NewRenderer(w, 0)
	doc := p.Parse([]byte(content))
	rendered := string(gomarkdown.Render(doc, r))

	// blue background inline code reads poorly on most themes
	rendered = inlineCodeRegex.ReplaceAllString(rendered, "\x1b[31m$1\x1b[0m")
	return strings.TrimRight(rendered, "\n")
}

// formatUserMessage draws the prompt behind a green bar.
func formatUserMessage(timestamp, role, content string) string {
	bar := UserStyle.Render("┃")

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\n", bar, timestamp, role)
	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(&b, "%s %s\n", bar, line)
	}
	b.WriteString("\n")
	return b.String()
}

// renderTranscript lays out the whole conversation. render is called for
// coach replies and may cache.
func renderTranscript(msgs []model.ChatMessage, pending string, thinking string, render func(string) string) string {
	if len(msgs) == 0 && pending == "" {
		return DimStyle.Render("Tell your coach what you're craving or what habit you're working on.")
	}

	var b strings.Builder
	for _, msg := range msgs {
		timestamp := DimStyle.Render(msg.Timestamp.Format("[15:04]"))
		switch msg.Role {
		case model.RoleUser:
			b.WriteString(formatUserMessage(timestamp, UserStyle.Render("You"), msg.Content))
		default:
			fmt.Fprintf(&b, "%s %s\n%s\n\n", timestamp, AssistantStyle.Render("Coach"), render(msg.Content))
		}
	}
	if pending != "" {
		b.WriteString(formatUserMessage(DimStyle.Render("[now]"), UserStyle.Render("You"), pending))
		b.WriteString(thinking)
		b.WriteString("\n")
	}
	return b.String()
}

// truncateLine cuts s to width terminal cells, accounting for wide runes.
func truncateLine(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

func displayWidth(s string) int {
	return runewidth.StringWidth(s)
}

func stripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}
