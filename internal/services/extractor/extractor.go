// Package extractor pulls product fields out of a storefront HTML page.
// Each field is resolved by a chain of candidate selectors; the first
// non-empty candidate wins.
package extractor

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"storefront/internal/models"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	metaTitleSelectors = []string{
		`meta[property="og:title"]`,
		`meta[name="twitter:title"]`,
		`meta[itemprop="name"]`,
	}
	headingSelectors = []string{
		`h1[itemprop="name"]`,
		`h1.product-title`,
		`h1.product-name`,
		`h1.product_title`,
		`h1.productTitle`,
		`[class*="product-title"] h1`,
		`[class*="product-name"] h1`,
		`.product h1`,
		`#product h1`,
		`h1`,
	}

	metaPriceSelectors = []string{
		`meta[property="product:price:amount"]`,
		`meta[property="og:price:amount"]`,
		`meta[itemprop="price"]`,
	}
	domPriceSelectors = []string{
		`[itemprop="price"]`,
		`.price`,
		`.product-price`,
		`.price-value`,
		`.current-price`,
		`.sale-price`,
		`[class*="price"]`,
		`[class*="Price"]`,
		`[id*="price"]`,
		`[id*="Price"]`,
		`span:contains("$")`,
		`p:contains("$")`,
	}

	metaImageSelectors = []string{
		`meta[property="og:image"]`,
		`meta[property="og:image:secure_url"]`,
		`meta[name="twitter:image"]`,
		`meta[itemprop="image"]`,
	}
	domImageSelectors = []string{
		`img[itemprop="image"]`,
		`.product-image img`,
		`.product-main-image img`,
		`.product-gallery img`,
		`.carousel img`,
		`#product-image`,
		`[class*="product"] img`,
		`[id*="product"] img`,
		`img[id*="product"]`,
		`img[class*="product"]`,
		`img`,
	}

	metaDescriptionSelectors = []string{
		`meta[name="description"]`,
		`meta[property="og:description"]`,
		`meta[name="twitter:description"]`,
		`meta[itemprop="description"]`,
	}
	domDescriptionSelectors = []string{
		`[itemprop="description"]`,
		`.product-description`,
		`.description`,
		`.product-details`,
		`#product-description`,
		`[class*="description"]`,
		`[id*="description"]`,
		`p:not(.price)`,
	}

	buyLinkSelectors = []string{
		`a.buy-button`,
		`a.buy-now`,
		`a.add-to-cart`,
		`a[class*="buy"]`,
		`a[class*="cart"]`,
		`a:contains("Buy")`,
		`a:contains("Add to Cart")`,
	}

	priceToken  = regexp.MustCompile(`[\d,.]+`)
	nonPriceRun = regexp.MustCompile(`[^\d.]`)
	hasDigit    = regexp.MustCompile(`\d`)
)

// Extract reads product fields from an HTML document served at pageURL.
// Fields that cannot be found are left empty.
func Extract(pageURL string, body []byte) (models.ProductInput, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return models.ProductInput{}, fmt.Errorf("parse html: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return models.ProductInput{}, fmt.Errorf("parse page url: %w", err)
	}

	return models.ProductInput{
		Title:       extractTitle(doc),
		Price:       models.Price(extractPrice(doc)),
		ImageURL:    extractImage(doc, base),
		BuyURL:      extractBuyURL(doc, base),
		Description: extractDescription(doc),
	}, nil
}

func extractTitle(doc *goquery.Document) string {
	if title := firstMeta(doc, metaTitleSelectors); title != "" {
		return title
	}
	if title := firstText(doc, headingSelectors); title != "" {
		return title
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func extractPrice(doc *goquery.Document) string {
	raw := firstMeta(doc, metaPriceSelectors)
	if raw == "" {
		raw = firstMatchingText(doc, domPriceSelectors, hasDigit)
	}
	return CleanPrice(raw)
}

func extractImage(doc *goquery.Document, base *url.URL) string {
	if src := firstMeta(doc, metaImageSelectors); src != "" {
		return resolve(base, src)
	}
	for _, sel := range domImageSelectors {
		if src := largestImage(doc.Find(sel)); src != "" {
			return resolve(base, src)
		}
	}
	return ""
}

func extractDescription(doc *goquery.Document) string {
	if desc := firstMeta(doc, metaDescriptionSelectors); desc != "" {
		return desc
	}
	return firstText(doc, domDescriptionSelectors)
}

func extractBuyURL(doc *goquery.Document, base *url.URL) string {
	for _, sel := range buyLinkSelectors {
		if href, ok := doc.Find(sel).First().Attr("href"); ok && strings.TrimSpace(href) != "" {
			return resolve(base, href)
		}
	}
	return base.String()
}

// CleanPrice keeps the first run of digits, commas and dots and drops
// everything but digits and dots from it: "$1,299.00 USD" -> "1299.00".
func CleanPrice(raw string) string {
	match := priceToken.FindString(raw)
	if match == "" {
		return ""
	}
	return nonPriceRun.ReplaceAllString(match, "")
}

func firstMeta(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		if content, ok := doc.Find(sel).First().Attr("content"); ok {
			if content = strings.TrimSpace(content); content != "" {
				return content
			}
		}
	}
	return ""
}

func firstText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		if text := elementText(doc.Find(sel).First()); text != "" {
			return text
		}
	}
	return ""
}

func firstMatchingText(doc *goquery.Document, selectors []string, want *regexp.Regexp) string {
	for _, sel := range selectors {
		var found string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if text := elementText(s); text != "" && want.MatchString(text) {
				found = text
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}

// elementText prefers the element's own text nodes over its descendants'.
func elementText(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}

	var direct strings.Builder
	for c := s.Get(0).FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			direct.WriteString(strings.TrimSpace(c.Data))
		}
	}
	if direct.Len() > 0 {
		return direct.String()
	}
	return strings.TrimSpace(s.Text())
}

func largestImage(imgs *goquery.Selection) string {
	var (
		best     string
		bestSize int
	)
	imgs.Each(func(_ int, img *goquery.Selection) {
		src := img.AttrOr("src", "")
		if src == "" {
			src = img.AttrOr("data-src", "")
		}
		if src == "" {
			return
		}
		width, _ := strconv.Atoi(img.AttrOr("width", "0"))
		height, _ := strconv.Atoi(img.AttrOr("height", "0"))
		if size := width * height; best == "" || size > bestSize {
			best, bestSize = src, size
		}
	})
	return best
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
