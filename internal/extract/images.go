package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/dshills/docreview/internal/providers"
	"github.com/dshills/docreview/internal/review"
)

var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

func image(mediaType string, data []byte) (providers.Image, error) {
	if len(data) == 0 {
		return providers.Image{}, fmt.Errorf("empty image")
	}
	return providers.Image{MediaType: mediaType, Data: data}, nil
}

// pages builds one image document from the files in dir, ordered so that
// page2.png comes before page10.png.
func pages(dir string, files []string) (review.Document, error) {
	sort.Slice(files, func(i, j int) bool { return naturalLess(files[i], files[j]) })

	doc := review.Document{Name: filepath.Base(dir)}
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			return review.Document{}, fmt.Errorf("reading page: %w", err)
		}
		img, err := image(imageTypes[strings.ToLower(filepath.Ext(f))], data)
		if err != nil {
			return review.Document{}, fmt.Errorf("%s: %w", f, err)
		}
		doc.Images = append(doc.Images, img)
	}
	return doc, nil
}

// naturalLess compares names treating digit runs as numbers.
func naturalLess(a, b string) bool {
	for a != "" && b != "" {
		ca, cb := rune(a[0]), rune(b[0])
		if unicode.IsDigit(ca) && unicode.IsDigit(cb) {
			na, ra := leadingNumber(a)
			nb, rb := leadingNumber(b)
			if na != nb {
				return na < nb
			}
			a, b = ra, rb
			continue
		}
		if ca != cb {
			return ca < cb
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

func leadingNumber(s string) (int, string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		n = 0
	}
	return n, s[i:]
}
