package crawler

import (
	"bytes"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".bmp":  {},
}

// HTMLExtractor pulls anchor hrefs and image sources out of HTML markup.
type HTMLExtractor struct{}

// NewHTMLExtractor returns an HTMLExtractor.
func NewHTMLExtractor() *HTMLExtractor { return &HTMLExtractor{} }

// Extract returns every a[href] value and every img[src] value with an
// allowed image extension, unresolved, de-duplicated, in document order.
// Markup that cannot be parsed yields no links and no images.
func (e *HTMLExtractor) Extract(body []byte) ([]string, []string) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil
	}
	links := collectAttr(doc, "a[href]", "href", nil)
	images := collectAttr(doc, "img[src]", "src", HasImageExtension)
	return links, images
}

// HasImageExtension reports whether src ends in one of the allowed image
// extensions, ignoring case, query, and fragment.
func HasImageExtension(src string) bool {
	p := strings.TrimSpace(src)
	if u, err := url.Parse(p); err == nil {
		p = u.Path
	}
	_, ok := imageExtensions[strings.ToLower(path.Ext(p))]
	return ok
}

func collectAttr(doc *goquery.Document, selector, attr string, keep func(string) bool) []string {
	var out []string
	seen := make(map[string]struct{})
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		v, ok := s.Attr(attr)
		if !ok {
			return
		}
		if keep != nil && !keep(v) {
			return
		}
		if _, dup := seen[v]; dup {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	})
	return out
}
