package widget

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const ruleWidth = 40

// TextStyle holds the lipgloss styles used by RenderText.
type TextStyle struct {
	Title       lipgloss.Style
	Subtitle    lipgloss.Style
	Item        lipgloss.Style
	Link        lipgloss.Style
	URL         lipgloss.Style
	Media       lipgloss.Style
	Rule        lipgloss.Style
	Placeholder lipgloss.Style
}

// DefaultTextStyle is the terminal style. lipgloss drops the colours when
// the output is not a terminal.
func DefaultTextStyle() TextStyle {
	return TextStyle{
		Title:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		Subtitle:    lipgloss.NewStyle().Faint(true),
		Item:        lipgloss.NewStyle(),
		Link:        lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
		URL:         lipgloss.NewStyle().Faint(true),
		Media:       lipgloss.NewStyle().Foreground(lipgloss.Color("205")),
		Rule:        lipgloss.NewStyle().Faint(true),
		Placeholder: lipgloss.NewStyle().Italic(true),
	}
}

// PlainTextStyle renders without any styling.
func PlainTextStyle() TextStyle {
	s := lipgloss.NewStyle()
	return TextStyle{
		Title: s, Subtitle: s, Item: s, Link: s,
		URL: s, Media: s, Rule: s, Placeholder: s,
	}
}

// RenderText writes the render tree as indented text.
func RenderText(w io.Writer, n *Node, style TextStyle) error {
	var b strings.Builder
	writeText(&b, n, style)
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("render text: %w", err)
	}
	return nil
}

func writeText(b *strings.Builder, n *Node, style TextStyle) {
	switch n.Kind {
	case KindBlock, KindList:
		for _, c := range n.Children {
			writeText(b, c, style)
		}
	case KindText:
		b.WriteString(style.Placeholder.Render(n.Text))
		b.WriteByte('\n')
	case KindHeading:
		if n.Level == 3 {
			b.WriteString(style.Subtitle.Render(n.Text))
		} else {
			b.WriteString(style.Title.Render(n.Text))
		}
		b.WriteByte('\n')
	case KindMedia:
		b.WriteString("  ")
		b.WriteString(style.Media.Render("[media] " + n.URL))
		b.WriteByte('\n')
	case KindItem:
		b.WriteString("  * ")
		if len(n.Children) == 0 {
			b.WriteString(style.Item.Render(n.Text))
		}
		for _, c := range n.Children {
			writeText(b, c, style)
		}
		b.WriteByte('\n')
	case KindLink:
		b.WriteString(style.Link.Render(n.Text))
		b.WriteString(" ")
		b.WriteString(style.URL.Render("<" + n.URL + ">"))
	case KindRule:
		b.WriteString(style.Rule.Render(strings.Repeat("-", ruleWidth)))
		b.WriteByte('\n')
	}
}
