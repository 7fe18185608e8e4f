package crawler

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Adda-Baaj/coupon-harvester/internal/domain"

	"github.com/PuerkitoBio/goquery"
)

// terms holds the labelled fields found in a voucher's terms and conditions.
type terms struct {
	Description      *string
	Offer            *string
	OrderAmount      *string
	UserLimitations  *string
	BrandLimitations *string
}

// parseTerms reads the terms paragraphs. A paragraph with a bold "Label:" prefix fills the
// matching field; the first unlabelled paragraph is the description. Unknown labels are ignored.
func parseTerms(html string) (terms, error) {
	var out terms
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return out, fmt.Errorf("parse terms markup: %w", err)
	}

	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		text := strings.TrimSpace(p.Text())
		if text == "" {
			return
		}

		bold := p.Find("b")
		if bold.Length() == 0 {
			if out.Description == nil {
				out.Description = domain.Text(text)
			}
			return
		}

		bold.Each(func(_ int, b *goquery.Selection) {
			raw := b.Text()
			label := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), ":"))
			value := strings.Replace(text, strings.TrimSpace(raw), "", 1)
			value = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(value), ":"))

			if field := out.field(label); field != nil {
				*field = domain.Text(value)
			}
		})
	})
	return out, nil
}

func (t *terms) field(label string) **string {
	switch strings.ToLower(label) {
	case "offer":
		return &t.Offer
	case "order amount":
		return &t.OrderAmount
	case "limitation for users", "limitations for users":
		return &t.UserLimitations
	case "limitations on brands", "limitation on brands":
		return &t.BrandLimitations
	default:
		return nil
	}
}

// parseSectionLinks extracts (absolute href, text) pairs from one directory section.
func parseSectionLinks(html, selector string, base *url.URL) ([]domain.FrontierEntry, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse section markup: %w", err)
	}

	var out []domain.FrontierEntry
	doc.Find(selector).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}
		if base != nil {
			if ref, err := url.Parse(href); err == nil {
				href = base.ResolveReference(ref).String()
			}
		}
		out = append(out, domain.FrontierEntry{URL: href, Label: strings.TrimSpace(a.Text())})
	})
	return out, nil
}

// iconSlug derives the shop slug from an icon url such as https://cdn.test/k/kmart.png, where
// the slug follows a single-character directory.
func iconSlug(src string) (string, bool) {
	u, err := url.Parse(src)
	if err != nil {
		return "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if len(parts[i]) != 1 {
			continue
		}
		slug, _, _ := strings.Cut(parts[i+1], ".")
		if slug != "" {
			return slug, true
		}
	}
	return "", false
}

// nth addresses the i-th (1-based) node of an XPath step.
func nth(sel string, i int) string {
	return fmt.Sprintf("%s[%d]", sel, i)
}
