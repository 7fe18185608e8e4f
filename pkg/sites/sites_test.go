package sites

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultSiteIsRegistered(t *testing.T) {
	s, ok := SiteByID(DefaultSiteID)
	if !ok {
		t.Fatalf("expected built-in site %q", DefaultSiteID)
	}
	if s.DirectoryURL != "https://www.cuponation.com.au/allshop" {
		t.Fatalf("unexpected directory url %s", s.DirectoryURL)
	}
	if len(s.Widgets()) != 2 || s.Selectors.CloseIcon == "" {
		t.Fatalf("selectors not populated: %+v", s.Selectors)
	}
}

func TestLoadSitesYAMLFillsDefaults(t *testing.T) {
	file := filepath.Join(t.TempDir(), "sites.yaml")
	content := `
sites:
  - id: cuponation-nz
    name: Cuponation New Zealand
    directory_url: https://www.cuponation.co.nz/allshop
    request_delay_ms: 250
    selectors:
      see_more: "//div[@class='more']/div"
`
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("write sites file: %v", err)
	}
	if err := LoadSites(file); err != nil {
		t.Fatalf("LoadSites returned error: %v", err)
	}

	s, ok := SiteByID("cuponation-nz")
	if !ok {
		t.Fatalf("expected cuponation-nz to be loaded")
	}
	if s.Selectors.SeeMore != "//div[@class='more']/div" {
		t.Fatalf("override lost: %s", s.Selectors.SeeMore)
	}
	if s.Selectors.PopupTitle != defaultSelectors.PopupTitle {
		t.Fatalf("default not applied: %s", s.Selectors.PopupTitle)
	}
	if s.RequestDelay() != 250*time.Millisecond {
		t.Fatalf("unexpected request delay: %v", s.RequestDelay())
	}
	if _, ok := SiteByID(DefaultSiteID); !ok {
		t.Fatalf("built-in site dropped by registry load")
	}
}

func TestLoadSitesRejectsDuplicatesAndMissingFields(t *testing.T) {
	cases := map[string]string{
		"duplicate": `{"sites":[{"id":"a","name":"A","directory_url":"https://a"},{"id":"a","name":"A2","directory_url":"https://a2"}]}`,
		"no url":    `{"sites":[{"id":"a","name":"A"}]}`,
		"empty":     `{"sites":[]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			file := filepath.Join(t.TempDir(), "sites.json")
			if err := os.WriteFile(file, []byte(body), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			if err := LoadSites(file); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
