package feed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"storefront/internal/apperrors"
)

// SitemapKind identifies the root element of a sitemap document.
type SitemapKind int

const (
	KindUnknown SitemapKind = iota
	KindURLSet
	KindIndex
)

// Sitemap is a parsed sitemap or sitemap index.
type Sitemap struct {
	Kind     SitemapKind
	URLs     []string
	Children []string
}

type xmlURLSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []xmlLoc `xml:"url"`
}

type xmlSitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []xmlLoc `xml:"sitemap"`
}

type xmlLoc struct {
	Loc string `xml:"loc"`
}

// ParseSitemap reads a urlset or sitemapindex document. Well-formed XML
// with any other root element yields a Sitemap of KindUnknown.
func ParseSitemap(body []byte) (*Sitemap, error) {
	root, err := rootElement(body)
	if err != nil {
		return nil, &apperrors.ParseError{Message: "Invalid sitemap XML", Err: err}
	}

	switch root {
	case "urlset":
		var set xmlURLSet
		if err := xml.Unmarshal(body, &set); err != nil {
			return nil, &apperrors.ParseError{Message: "Invalid sitemap XML", Err: err}
		}
		return &Sitemap{Kind: KindURLSet, URLs: locs(set.URLs)}, nil

	case "sitemapindex":
		var index xmlSitemapIndex
		if err := xml.Unmarshal(body, &index); err != nil {
			return nil, &apperrors.ParseError{Message: "Invalid sitemap XML", Err: err}
		}
		return &Sitemap{Kind: KindIndex, Children: locs(index.Sitemaps)}, nil
	}

	return &Sitemap{Kind: KindUnknown}, nil
}

func rootElement(body []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return "", errors.New("no root element")
		}
		if err != nil {
			return "", err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}

func locs(entries []xmlLoc) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if loc := strings.TrimSpace(e.Loc); loc != "" {
			out = append(out, loc)
		}
	}
	return out
}

// ProductURLs keeps the locations that point at product pages.
func ProductURLs(locs []string) []string {
	out := make([]string, 0, len(locs))
	for _, loc := range locs {
		if strings.Contains(loc, "/products/") {
			out = append(out, loc)
		}
	}
	return out
}

// ProductJSONURL rewrites a storefront product page URL to its JSON
// endpoint. Other URLs are returned unchanged.
func ProductJSONURL(u string) string {
	if !strings.Contains(u, ".myshopify.com/") && !strings.Contains(u, "/products/") {
		return u
	}
	if strings.HasSuffix(u, ".json") {
		return u
	}
	return u + ".json"
}
