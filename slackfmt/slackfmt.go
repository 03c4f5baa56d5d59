// Package slackfmt renders Markdown into Slack's mrkdwn dialect so extracted
// document summaries can be posted to channels without double formatting.
package slackfmt

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	gtext "github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
)

// Render converts Markdown source to mrkdwn. Unsupported constructs fall
// back to their plain text content.
func Render(source string) string {
	md := goldmark.New(goldmark.WithExtensions(extension.Strikethrough))
	src := []byte(source)
	doc := md.Parser().Parse(gtext.NewReader(src))

	var out strings.Builder
	renderBlocks(&out, doc, src, "")
	return strings.TrimRight(out.String(), "\n")
}

func renderBlocks(out *strings.Builder, parent ast.Node, src []byte, prefix string) {
	for node := parent.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.Heading:
			out.WriteString(prefix)
			out.WriteString("*")
			out.WriteString(renderInline(n, src))
			out.WriteString("*\n\n")
		case *ast.Paragraph, *ast.TextBlock:
			out.WriteString(prefix)
			out.WriteString(renderInline(node, src))
			out.WriteString("\n\n")
		case *ast.FencedCodeBlock:
			writeCodeBlock(out, prefix, codeLines(n, src))
		case *ast.CodeBlock:
			writeCodeBlock(out, prefix, codeLines(n, src))
		case *ast.Blockquote:
			var inner strings.Builder
			renderBlocks(&inner, n, src, "")
			for _, line := range strings.Split(strings.TrimRight(inner.String(), "\n"), "\n") {
				out.WriteString(prefix)
				out.WriteString("> ")
				out.WriteString(line)
				out.WriteByte('\n')
			}
			out.WriteByte('\n')
		case *ast.List:
			renderList(out, n, src, prefix)
			out.WriteByte('\n')
		case *ast.ThematicBreak:
			out.WriteString(prefix)
			out.WriteString("---\n\n")
		case *ast.HTMLBlock:
			if text := stripHTML(rawLines(n, src)); text != "" {
				out.WriteString(prefix)
				out.WriteString(escape(text))
				out.WriteString("\n\n")
			}
		default:
			if text := renderInline(node, src); text != "" {
				out.WriteString(prefix)
				out.WriteString(text)
				out.WriteString("\n\n")
			}
		}
	}
}

func renderList(out *strings.Builder, list *ast.List, src []byte, prefix string) {
	index := list.Start
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "• "
		if list.IsOrdered() {
			marker = fmt.Sprintf("%d. ", index)
			index++
		}
		var inner strings.Builder
		for child := item.FirstChild(); child != nil; child = child.NextSibling() {
			switch c := child.(type) {
			case *ast.List:
				if inner.Len() > 0 {
					inner.WriteByte('\n')
				}
				renderList(&inner, c, src, prefix+"    ")
			default:
				if inner.Len() > 0 {
					inner.WriteByte('\n')
				}
				inner.WriteString(prefix)
				inner.WriteString(marker)
				inner.WriteString(renderInline(child, src))
			}
		}
		out.WriteString(strings.TrimRight(inner.String(), "\n"))
		out.WriteByte('\n')
	}
}

// renderInline flattens a block's inline children into mrkdwn text.
func renderInline(parent ast.Node, src []byte) string {
	var b strings.Builder
	for node := parent.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.Text:
			b.WriteString(escape(string(n.Segment.Value(src))))
			if n.SoftLineBreak() {
				b.WriteByte(' ')
			}
			if n.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.WriteString(escape(string(n.Value)))
		case *ast.Emphasis:
			mark := "_"
			if n.Level >= 2 {
				mark = "*"
			}
			b.WriteString(mark)
			b.WriteString(renderInline(n, src))
			b.WriteString(mark)
		case *extast.Strikethrough:
			b.WriteString("~")
			b.WriteString(renderInline(n, src))
			b.WriteString("~")
		case *ast.CodeSpan:
			b.WriteString("`")
			b.WriteString(string(n.Text(src)))
			b.WriteString("`")
		case *ast.Link:
			dest := escape(string(n.Destination))
			label := renderInline(n, src)
			if label == "" || label == dest {
				b.WriteString("<" + dest + ">")
			} else {
				b.WriteString("<" + dest + "|" + label + ">")
			}
		case *ast.AutoLink:
			b.WriteString("<" + escape(string(n.URL(src))) + ">")
		case *ast.Image:
			// Slack cannot inline images; keep the alt text.
			b.WriteString(renderInline(n, src))
		case *ast.RawHTML:
			var raw strings.Builder
			for i := 0; i < n.Segments.Len(); i++ {
				seg := n.Segments.At(i)
				raw.Write(seg.Value(src))
			}
			b.WriteString(escape(stripHTML(raw.String())))
		default:
			b.WriteString(renderInline(n, src))
		}
	}
	return b.String()
}

func writeCodeBlock(out *strings.Builder, prefix, code string) {
	out.WriteString(prefix)
	out.WriteString("```\n")
	out.WriteString(code)
	if !strings.HasSuffix(code, "\n") {
		out.WriteByte('\n')
	}
	out.WriteString("```\n\n")
}

func codeLines(n interface {
	Lines() *gtext.Segments
}, src []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
	}
	return b.String()
}

func rawLines(n *ast.HTMLBlock, src []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
	}
	return b.String()
}

// stripHTML drops tags and returns the text content of an HTML fragment.
func stripHTML(fragment string) string {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.TrimSpace(b.String())
}

// escape applies Slack's control-character escaping.
func escape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
