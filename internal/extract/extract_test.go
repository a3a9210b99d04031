package extract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docreview/internal/redact"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParse_PlainText(t *testing.T) {
	doc, err := Parse("notes.txt", []byte("line one\r\nline two\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", doc.Name)
	assert.Equal(t, "line one\nline two", doc.Text)
	assert.False(t, doc.IsImage())
}

func TestParse_Markdown(t *testing.T) {
	src := "# Access Policy\n\nAll staff use **SSO**.\nPasswords rotate yearly.\n\n## Scope\n\n- laptops\n- servers\n\n```\ncode block\n```\n"
	doc, err := Parse("policy.md", []byte(src))
	require.NoError(t, err)

	assert.Contains(t, doc.Text, "# Access Policy")
	assert.Contains(t, doc.Text, "## Scope")
	assert.Contains(t, doc.Text, "All staff use SSO.")
	assert.Contains(t, doc.Text, "- laptops\n- servers")
	assert.Contains(t, doc.Text, "code block")
	assert.NotContains(t, doc.Text, "**")
}

func TestParse_HTML(t *testing.T) {
	src := `<html><head><title>T</title><style>p{}</style></head><body>
<nav>menu</nav>
<h1>Backup   Plan</h1>
<p>Nightly <b>snapshots</b> are kept.</p>
<ul><li>offsite copy</li></ul>
<script>alert(1)</script>
</body></html>`
	doc, err := Parse("plan.html", []byte(src))
	require.NoError(t, err)

	assert.Equal(t, "# Backup Plan\n\nNightly snapshots are kept.\n\n- offsite copy", doc.Text)
}

func TestParse_CSV(t *testing.T) {
	src := "control,status\nMFA,enabled\nEDR,missing,extra\n"
	doc, err := Parse("controls.csv", []byte(src))
	require.NoError(t, err)

	lines := strings.Split(doc.Text, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Row 1: control: MFA; status: enabled;", lines[0])
	assert.Equal(t, "Row 2: control: EDR; status: missing; extra;", lines[1])
}

func TestParse_Image(t *testing.T) {
	doc, err := Parse("scan.JPG", []byte{0xff, 0xd8, 0xff})
	require.NoError(t, err)
	require.True(t, doc.IsImage())
	assert.Equal(t, "image/jpeg", doc.Images[0].MediaType)
	assert.Equal(t, 1, doc.Len())

	_, err = Parse("empty.png", nil)
	assert.Error(t, err)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse("archive.zip", []byte("x"))
	assert.ErrorContains(t, err, "unsupported")

	_, err = Parse("blank.txt", []byte("  \n "))
	assert.ErrorContains(t, err, "no text content")

	_, err = Parse("broken.pdf", []byte("not a pdf"))
	assert.Error(t, err)

	_, err = Parse("broken.docx", []byte("not a zip"))
	assert.Error(t, err)
}

func TestSupported(t *testing.T) {
	for _, name := range []string{"a.txt", "b.MD", "c.pdf", "d.docx", "e.html", "f.csv", "g.webp", "h.jpeg"} {
		assert.True(t, Supported(name), name)
	}
	for _, name := range []string{"a.exe", "b", "c.doc"} {
		assert.False(t, Supported(name), name)
	}
}

func TestFile_RedactedPath(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, ".env", "API_KEY=abc")

	doc, err := File(path, Options{RedactPaths: []string{"**/.env"}})
	require.NoError(t, err)
	assert.Equal(t, ".env", doc.Name)
	assert.True(t, strings.HasPrefix(doc.Text, redact.Placeholder))
	assert.NotContains(t, doc.Text, "abc")
}

func TestDir_ImagePages(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "scan")
	require.NoError(t, os.Mkdir(dir, 0o755))
	for _, n := range []string{"page10.png", "page2.png", "page1.png"} {
		writeFile(t, dir, n, n)
	}
	writeFile(t, dir, "README", "ignored")

	docs, err := Dir(dir, Options{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	doc := docs[0]
	assert.Equal(t, "scan", doc.Name)
	require.Len(t, doc.Images, 3)
	assert.Equal(t, "page1.png", string(doc.Images[0].Data))
	assert.Equal(t, "page2.png", string(doc.Images[1].Data))
	assert.Equal(t, "page10.png", string(doc.Images[2].Data))
}

func TestDir_MixedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.txt", "bravo")
	writeFile(t, dir, "a.md", "alpha")
	writeFile(t, dir, "c.png", "png")

	docs, err := Dir(dir, Options{})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "a.md", docs[0].Name)
	assert.Equal(t, "b.txt", docs[1].Name)
	assert.True(t, docs[2].IsImage())
}

func TestDir_Empty(t *testing.T) {
	_, err := Dir(t.TempDir(), Options{})
	assert.ErrorContains(t, err, "no supported documents")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	one := writeFile(t, dir, "one.txt", "first")
	sub := filepath.Join(dir, "pages")
	require.NoError(t, os.Mkdir(sub, 0o755))
	writeFile(t, sub, "1.png", "p1")

	docs, err := Load([]string{sub, one}, Options{})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.True(t, docs[0].IsImage())
	assert.Equal(t, "first", docs[1].Text)

	_, err = Load([]string{filepath.Join(dir, "missing.txt")}, Options{})
	assert.Error(t, err)
}

func TestNaturalLess(t *testing.T) {
	assert.True(t, naturalLess("p2", "p10"))
	assert.False(t, naturalLess("p10", "p2"))
	assert.True(t, naturalLess("a", "b"))
	assert.True(t, naturalLess("p1", "p1a"))
}

func TestBytes(t *testing.T) {
	opts := Options{RedactPaths: []string{"**/*secrets*"}}

	doc, err := Bytes("config/secrets.txt", []byte("password=hunter2"), opts)
	require.NoError(t, err)
	assert.Equal(t, "secrets.txt", doc.Name)
	assert.NotContains(t, doc.Text, "hunter2")

	doc, err = Bytes("notes.txt", []byte("hello"), opts)
	require.NoError(t, err)
	assert.Equal(t, "hello", doc.Text)
}
