package services

import (
	"fmt"
	"math/rand/v2"
	"net/url"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"aura-chat/models"
)

// The model asks for pictures with in-band markers:
//
//	marker := "[image:" query "]"
//
// The opening "[image:" is literal and case-sensitive. The query runs to the
// first unescaped "]"; inside it "\]", "\[" and "\\" stand for the literal
// character. A newline inside the query, or a missing "]", leaves the text
// as ordinary prose. A backslash right before "[image:" disables the marker.
const (
	imageMarker        = "[image:"
	maxImageQueryLen   = 100
	ImageURLTemplate   = "https://source.unsplash.com/random/800x800/?%s&sig=%s"
	horizontalSpace    = " \t"
	closingPunctuation = ".,;:!?)"
)

// ImageExtractor turns image markers in model output into image suggestions
type ImageExtractor struct {
	// URLTemplate receives the encoded query and the cache-busting value.
	URLTemplate string
	Sig         func() string
}

var defaultExtractor = &ImageExtractor{}

// ExtractResponseImages removes image markers from text and returns the
// cleaned text with one ResponseImage per non-empty marker, in order.
func ExtractResponseImages(text string) (string, []models.ResponseImage) {
	return defaultExtractor.Extract(text)
}

// Extract removes image markers from text. Every call yields fresh image URLs.
func (e *ImageExtractor) Extract(text string) (string, []models.ResponseImage) {
	var out strings.Builder
	images := []models.ResponseImage{}

	for i := 0; i < len(text); {
		if strings.HasPrefix(text[i:], imageMarker) && (i == 0 || text[i-1] != '\\') {
			if query, end, ok := scanImageQuery(text, i+len(imageMarker)); ok {
				if q := sanitizeImageQuery(query); q != "" {
					images = append(images, e.image(q))
				}
				i = joinRemovalSite(&out, text, end)
				continue
			}
		}
		out.WriteByte(text[i])
		i++
	}

	return strings.TrimSpace(out.String()), images
}

func (e *ImageExtractor) image(query string) models.ResponseImage {
	tmpl := e.URLTemplate
	if tmpl == "" {
		tmpl = ImageURLTemplate
	}
	sig := e.Sig
	if sig == nil {
		sig = randomSig
	}
	encoded := strings.ReplaceAll(url.QueryEscape(query), "+", "%20")
	return models.ResponseImage{
		URL: fmt.Sprintf(tmpl, encoded, url.QueryEscape(sig())),
		Alt: query,
	}
}

func randomSig() string {
	return strconv.FormatFloat(rand.Float64(), 'f', -1, 64)
}

// scanImageQuery reads a marker query starting at start. It returns the raw
// query with escapes resolved and the index just past the closing bracket.
func scanImageQuery(text string, start int) (string, int, bool) {
	var q strings.Builder
	for j := start; j < len(text); j++ {
		switch c := text[j]; c {
		case '\\':
			if j+1 < len(text) && strings.IndexByte(`[]\`, text[j+1]) >= 0 {
				q.WriteByte(text[j+1])
				j++
				continue
			}
			q.WriteByte(c)
		case '\n':
			return "", 0, false
		case ']':
			return q.String(), j + 1, true
		default:
			q.WriteByte(c)
		}
	}
	return "", 0, false
}

// sanitizeImageQuery makes a query safe to embed in a URL and show as alt text
func sanitizeImageQuery(query string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == utf8.RuneError || unicode.IsControl(r) {
			return ' '
		}
		return r
	}, query)
	q := strings.Join(strings.Fields(cleaned), " ")
	if utf8.RuneCountInString(q) > maxImageQueryLen {
		q = strings.TrimSpace(string([]rune(q)[:maxImageQueryLen]))
	}
	return q
}

// joinRemovalSite repairs the whitespace around a removed marker so that
// "A [image: x] and" reads "A and". It returns where scanning resumes.
func joinRemovalSite(out *strings.Builder, text string, next int) int {
	rest := text[next:]
	skipSpace := next + len(rest) - len(strings.TrimLeft(rest, horizontalSpace))

	written := out.String()
	if written == "" || strings.HasSuffix(written, "\n") {
		return skipSpace
	}
	trimmed := strings.TrimRight(written, horizontalSpace)
	if len(trimmed) == len(written) {
		return next
	}

	switch {
	case rest == "" || rest[0] == '\n' || rest[0] == '\r' || strings.IndexByte(closingPunctuation, rest[0]) >= 0:
		out.Reset()
		out.WriteString(trimmed)
	case strings.IndexByte(horizontalSpace, rest[0]) >= 0:
		return skipSpace
	}
	return next
}
