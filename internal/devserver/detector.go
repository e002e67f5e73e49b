package devserver

import (
	"context"
	"path/filepath"
	"strings"
	"unicode"
)

// Detector maps an uploaded photo to ingredient names.
type Detector interface {
	Detect(ctx context.Context, filename string, data []byte) ([]string, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, filename string, data []byte) ([]string, error)

func (f DetectorFunc) Detect(ctx context.Context, filename string, data []byte) ([]string, error) {
	return f(ctx, filename, data)
}

// FilenameDetector reads ingredients from the file name, so a photo named
// "egg_flour-milk.jpg" yields egg, flour and milk. It stands in for a real
// vision model during development.
type FilenameDetector struct{}

func (FilenameDetector) Detect(_ context.Context, filename string, _ []byte) ([]string, error) {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	fields := strings.FieldsFunc(strings.ToLower(base), func(r rune) bool {
		return !unicode.IsLetter(r)
	})

	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || ignoredWords[f] {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out, nil
}

var ignoredWords = map[string]bool{
	"img": true, "image": true, "photo": true, "pic": true, "and": true,
}
