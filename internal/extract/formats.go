package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/fumiama/go-docx"
	pdflib "github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
)

type textParser func(data []byte) (string, error)

var textParsers = map[string]textParser{
	".txt":      plainText,
	".text":     plainText,
	".md":       markdownText,
	".markdown": markdownText,
	".html":     htmlText,
	".htm":      htmlText,
	".pdf":      pdfText,
	".docx":     docxText,
	".csv":      csvText,
}

func plainText(data []byte) (string, error) {
	s := strings.ReplaceAll(string(data), "\r\n", "\n")
	return strings.TrimSpace(s), nil
}

// markdownText keeps headings as "#" lines and flattens everything else into
// paragraphs.
func markdownText(data []byte) (string, error) {
	doc := goldmark.New().Parser().Parse(text.NewReader(data))

	var blocks []string
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			title := strings.TrimSpace(inlineText(node, data))
			if title != "" {
				blocks = append(blocks, strings.Repeat("#", node.Level)+" "+title)
			}
		case *ast.List:
			var items []string
			for li := node.FirstChild(); li != nil; li = li.NextSibling() {
				if t := blockText(li, data); t != "" {
					items = append(items, "- "+t)
				}
			}
			if len(items) > 0 {
				blocks = append(blocks, strings.Join(items, "\n"))
			}
		default:
			if t := blockText(n, data); t != "" {
				blocks = append(blocks, t)
			}
		}
	}
	return strings.Join(blocks, "\n\n"), nil
}

// blockText returns the raw lines of a block, or its inline text when it has
// none.
func blockText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
	}
	if buf.Len() > 0 && n.FirstChild() == nil {
		return strings.TrimSpace(buf.String())
	}
	buf.Reset()
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if c.Type() == ast.TypeBlock {
			if t := blockText(c, src); t != "" {
				if buf.Len() > 0 {
					buf.WriteByte(' ')
				}
				buf.WriteString(t)
			}
			continue
		}
		buf.WriteString(inlineText(c, src))
	}
	return strings.TrimSpace(buf.String())
}

func inlineText(n ast.Node, src []byte) string {
	if t, ok := n.(*ast.Text); ok {
		s := string(t.Segment.Value(src))
		if t.SoftLineBreak() || t.HardLineBreak() {
			s += "\n"
		}
		return s
	}
	if s, ok := n.(*ast.String); ok {
		return string(s.Value)
	}
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		b.WriteString(inlineText(c, src))
	}
	return b.String()
}

func htmlText(data []byte) (string, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var blocks []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "nav", "footer", "head":
				return
			case "h1", "h2", "h3", "h4", "h5", "h6":
				if t := nodeText(n); t != "" {
					level := int(n.Data[1] - '0')
					blocks = append(blocks, strings.Repeat("#", level)+" "+t)
				}
				return
			case "li":
				if t := nodeText(n); t != "" {
					blocks = append(blocks, "- "+t)
				}
				return
			case "p", "td", "th", "blockquote", "pre", "dt", "dd":
				if t := nodeText(n); t != "" {
					blocks = append(blocks, t)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	if len(blocks) == 0 {
		// Pages built from bare text nodes.
		return nodeText(root), nil
	}
	return strings.Join(blocks, "\n\n"), nil
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// pdfText extracts plain text page by page. Pages that fail to decode are
// skipped rather than failing the whole document.
func pdfText(data []byte) (string, error) {
	r, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		t, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		if t = strings.TrimSpace(t); t != "" {
			pages = append(pages, t)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

func docxText(data []byte) (string, error) {
	d, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse docx: %w", err)
	}

	var paras []string
	for _, item := range d.Document.Body.Items {
		p, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		t := paragraphText(p)
		if t == "" {
			continue
		}
		if level := headingLevel(p); level > 0 {
			t = strings.Repeat("#", level) + " " + t
		}
		paras = append(paras, t)
	}
	return strings.Join(paras, "\n\n"), nil
}

func paragraphText(p *docx.Paragraph) string {
	var b strings.Builder
	for _, child := range p.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				b.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// headingLevel reads "Heading2" or "heading 2" style names.
func headingLevel(p *docx.Paragraph) int {
	if p.Properties == nil || p.Properties.Style == nil {
		return 0
	}
	style := strings.ToLower(strings.ReplaceAll(p.Properties.Style.Val, " ", ""))
	if rest, ok := strings.CutPrefix(style, "heading"); ok && len(rest) == 1 && rest[0] >= '1' && rest[0] <= '6' {
		return int(rest[0] - '0')
	}
	return 0
}

// csvText renders every row as "header: value" pairs so the model sees the
// column for each cell.
func csvText(data []byte) (string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return "", fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return "", nil
	}

	headers := records[0]
	var b strings.Builder
	for i, row := range records[1:] {
		fmt.Fprintf(&b, "Row %d:", i+1)
		for j, cell := range row {
			if j < len(headers) && headers[j] != "" {
				fmt.Fprintf(&b, " %s: %s;", headers[j], cell)
			} else {
				fmt.Fprintf(&b, " %s;", cell)
			}
		}
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String()), nil
}
