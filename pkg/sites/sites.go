// Package sites holds the per-site URLs and selectors the crawler works with, loaded from a
// YAML or JSON registry file with built-in defaults.
package sites

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Selectors are XPath expressions unless noted. Card* selectors are suffixes appended to a
// single voucher card expression.
type Selectors struct {
	AlphabetSections string `json:"alphabet_sections" yaml:"alphabet_sections"`
	// SectionLinks is a CSS selector applied to the markup of each alphabet section.
	SectionLinks    string `json:"section_links" yaml:"section_links"`
	ActiveVouchers  string `json:"active_vouchers" yaml:"active_vouchers"`
	SimilarVouchers string `json:"similar_vouchers" yaml:"similar_vouchers"`
	CardButton      string `json:"card_button" yaml:"card_button"`
	CardBanner      string `json:"card_banner" yaml:"card_banner"`
	SeeMore         string `json:"see_more" yaml:"see_more"`
	PopupTitle      string `json:"popup_title" yaml:"popup_title"`
	TermsToggle     string `json:"terms_toggle" yaml:"terms_toggle"`
	TermsParagraphs string `json:"terms_paragraphs" yaml:"terms_paragraphs"`
	Code            string `json:"code" yaml:"code"`
	// CloseIcon is a CSS selector.
	CloseIcon   string `json:"close_icon" yaml:"close_icon"`
	DetailIcon  string `json:"detail_icon" yaml:"detail_icon"`
	DetailAbout string `json:"detail_about" yaml:"detail_about"`
}

// Site describes one deals site.
type Site struct {
	ID             string    `json:"id" yaml:"id"`
	Name           string    `json:"name" yaml:"name"`
	DirectoryURL   string    `json:"directory_url" yaml:"directory_url"`
	RequestDelayMs int       `json:"request_delay_ms" yaml:"request_delay_ms"`
	Selectors      Selectors `json:"selectors" yaml:"selectors"`
}

// Button labels with special handling.
const (
	ButtonSubscribe = "SUBSCRIBE"
	ButtonSeeCode   = "SEE CODE"
)

const DefaultSiteID = "cuponation-au"

var defaultSelectors = Selectors{
	AlphabetSections: `//div[@data-testid='alphabet-sections']/div`,
	SectionLinks:     `a[href]`,
	ActiveVouchers:   `//div[@data-testid="active-vouchers-widget"]/div`,
	SimilarVouchers:  `//div[@data-testid="similar-vouchers-widget"]/div`,
	CardButton:       `//div[@role='button']`,
	CardBanner:       `[@data-testid='kam-banner-main-1']`,
	SeeMore:          `//div[@class='r0c5x30']/div`,
	PopupTitle:       `//div[@data-testid='voucherPopup-header-popupTitleWrapper']/h4`,
	TermsToggle:      `//div[@data-testid='voucherPopup-collapsablePanel-header']/button`,
	TermsParagraphs:  `//div[@data-testid='voucherPopup-termsAndConditions-root']//div[@data-testid='rich-text-root']`,
	Code:             `//span[@data-testid='voucherPopup-codeHolder-voucherType-code']/h4`,
	CloseIcon:        `span[data-testid='CloseIcon']`,
	DetailIcon:       `//div[@class='gxs4fb0']//img`,
	DetailAbout:      `//div[@data-testid='sidebar-text-sidebar-1']//div[@class='_1mq6bor6']`,
}

func defaultSites() []Site {
	return []Site{{
		ID:             DefaultSiteID,
		Name:           "Cuponation Australia",
		DirectoryURL:   "https://www.cuponation.com.au/allshop",
		RequestDelayMs: defaultRequestDelayMs,
		Selectors:      defaultSelectors,
	}}
}

type registry struct {
	Sites []Site `json:"sites" yaml:"sites"`
}

var (
	regMu                 sync.RWMutex
	sitesIdx              map[string]Site
	defaultRequestDelayMs = 1000
)

func init() {
	idx := make(map[string]Site)
	for _, s := range defaultSites() {
		idx[s.ID] = s
	}
	sitesIdx = idx
}

// SiteByID returns the site entry for the given id.
func SiteByID(id string) (Site, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Site{}, false
	}

	regMu.RLock()
	defer regMu.RUnlock()

	s, ok := sitesIdx[id]
	return s, ok
}

// LoadSites loads a registry file. Sites in the file replace built-ins with the same id;
// unset selectors fall back to the defaults.
func LoadSites(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("sites file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open sites file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("read sites file: %w", err)
	}

	reg, err := parseRegistry(raw, filepath.Ext(path))
	if err != nil {
		return err
	}
	if len(reg.Sites) == 0 {
		return errors.New("sites file contains no sites entries")
	}

	idx := make(map[string]Site, len(reg.Sites)+1)
	for _, s := range defaultSites() {
		idx[s.ID] = s
	}
	seen := make(map[string]struct{}, len(reg.Sites))
	for i := range reg.Sites {
		s := sanitizeSite(reg.Sites[i])
		if err := validateSite(s); err != nil {
			return fmt.Errorf("site[%d]: %w", i, err)
		}
		if _, exists := seen[s.ID]; exists {
			return fmt.Errorf("duplicate site id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
		idx[s.ID] = s
	}

	regMu.Lock()
	sitesIdx = idx
	regMu.Unlock()
	return nil
}

type unmarshalFn func([]byte, any) error

func parseRegistry(data []byte, ext string) (registry, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   unmarshalFn
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var reg registry
		if err := d.fn(data, &reg); err == nil {
			return reg, nil
		}
	}
	return registry{}, errors.New("sites file format not recognized (expected YAML or JSON)")
}

func sanitizeSite(s Site) Site {
	s.ID = strings.TrimSpace(s.ID)
	s.Name = strings.TrimSpace(s.Name)
	s.DirectoryURL = strings.TrimSpace(s.DirectoryURL)
	if s.RequestDelayMs <= 0 {
		s.RequestDelayMs = defaultRequestDelayMs
	}
	s.Selectors = s.Selectors.withDefaults(defaultSelectors)
	return s
}

func validateSite(s Site) error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.Name == "" {
		return fmt.Errorf("name is required for site %q", s.ID)
	}
	if s.DirectoryURL == "" {
		return fmt.Errorf("directory_url is required for site %q", s.ID)
	}
	return nil
}

func (sel Selectors) withDefaults(def Selectors) Selectors {
	pick := func(v, fallback string) string {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
		return fallback
	}
	return Selectors{
		AlphabetSections: pick(sel.AlphabetSections, def.AlphabetSections),
		SectionLinks:     pick(sel.SectionLinks, def.SectionLinks),
		ActiveVouchers:   pick(sel.ActiveVouchers, def.ActiveVouchers),
		SimilarVouchers:  pick(sel.SimilarVouchers, def.SimilarVouchers),
		CardButton:       pick(sel.CardButton, def.CardButton),
		CardBanner:       pick(sel.CardBanner, def.CardBanner),
		SeeMore:          pick(sel.SeeMore, def.SeeMore),
		PopupTitle:       pick(sel.PopupTitle, def.PopupTitle),
		TermsToggle:      pick(sel.TermsToggle, def.TermsToggle),
		TermsParagraphs:  pick(sel.TermsParagraphs, def.TermsParagraphs),
		Code:             pick(sel.Code, def.Code),
		CloseIcon:        pick(sel.CloseIcon, def.CloseIcon),
		DetailIcon:       pick(sel.DetailIcon, def.DetailIcon),
		DetailAbout:      pick(sel.DetailAbout, def.DetailAbout),
	}
}

// RequestDelay returns the pause between two shop pages.
func (s Site) RequestDelay() time.Duration {
	if s.RequestDelayMs <= 0 {
		return time.Duration(defaultRequestDelayMs) * time.Millisecond
	}
	return time.Duration(s.RequestDelayMs) * time.Millisecond
}

// Widgets returns the voucher list selectors in crawl order.
func (s Site) Widgets() []string {
	return []string{s.Selectors.ActiveVouchers, s.Selectors.SimilarVouchers}
}
