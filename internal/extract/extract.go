package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dshills/docreview/internal/redact"
	"github.com/dshills/docreview/internal/review"
)

// Options controls how files become documents.
type Options struct {
	// RedactPaths withholds the content of files whose path matches one of
	// these globs. Matching documents are still listed, with placeholder text.
	RedactPaths []string
}

// Supported reports whether name has an extension Parse understands.
func Supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	_, isText := textParsers[ext]
	_, isImage := imageTypes[ext]
	return isText || isImage
}

// Parse converts raw file bytes into a document. The format is chosen by the
// extension of name.
func Parse(name string, data []byte) (review.Document, error) {
	ext := strings.ToLower(filepath.Ext(name))
	doc := review.Document{Name: filepath.Base(name)}

	if mt, ok := imageTypes[ext]; ok {
		img, err := image(mt, data)
		if err != nil {
			return review.Document{}, fmt.Errorf("%s: %w", name, err)
		}
		doc.Images = append(doc.Images, img)
		return doc, nil
	}

	parse, ok := textParsers[ext]
	if !ok {
		return review.Document{}, fmt.Errorf("%s: unsupported file extension %q", name, ext)
	}
	text, err := parse(data)
	if err != nil {
		return review.Document{}, fmt.Errorf("%s: %w", name, err)
	}
	if strings.TrimSpace(text) == "" {
		return review.Document{}, fmt.Errorf("%s: no text content", name)
	}
	doc.Text = text
	return doc, nil
}

// File loads one file.
func File(path string, opts Options) (review.Document, error) {
	if redact.MatchPath(path, opts.RedactPaths) {
		return withheld(path, opts), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return review.Document{}, fmt.Errorf("reading document: %w", err)
	}
	return Parse(path, data)
}

// Bytes is Parse with path redaction applied to name. It serves uploads,
// where there is no file on disk.
func Bytes(name string, data []byte, opts Options) (review.Document, error) {
	if redact.MatchPath(name, opts.RedactPaths) {
		return withheld(name, opts), nil
	}
	return Parse(name, data)
}

func withheld(path string, opts Options) review.Document {
	return review.Document{
		Name: filepath.Base(path),
		Text: redact.Document("", path, opts.RedactPaths),
	}
}

// Dir loads a directory. A directory holding only images becomes one image
// document whose pages are the files in name order. Otherwise every
// supported file in it becomes its own document. Subdirectories are ignored.
func Dir(path string, opts Options) ([]review.Document, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	var images, others []string
	for _, e := range entries {
		if e.IsDir() || !Supported(e.Name()) {
			continue
		}
		if _, ok := imageTypes[strings.ToLower(filepath.Ext(e.Name()))]; ok {
			images = append(images, e.Name())
		} else {
			others = append(others, e.Name())
		}
	}
	if len(images) == 0 && len(others) == 0 {
		return nil, fmt.Errorf("%s: no supported documents", path)
	}

	if len(others) == 0 {
		doc, err := pages(path, images)
		if err != nil {
			return nil, err
		}
		return []review.Document{doc}, nil
	}

	names := append(others, images...)
	sort.Strings(names)
	docs := make([]review.Document, 0, len(names))
	for _, n := range names {
		d, err := File(filepath.Join(path, n), opts)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// Load resolves every path, file or directory, into documents in argument
// order.
func Load(paths []string, opts Options) ([]review.Document, error) {
	var docs []review.Document
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("reading document: %w", err)
		}
		if info.IsDir() {
			ds, err := Dir(p, opts)
			if err != nil {
				return nil, err
			}
			docs = append(docs, ds...)
			continue
		}
		d, err := File(p, opts)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}
