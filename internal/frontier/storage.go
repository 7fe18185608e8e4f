// Package frontier persists the list of shop pages to visit and whether each one has been
// scraped in the current pass.
package frontier

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Adda-Baaj/coupon-harvester/internal/domain"
)

// Store is a durable, ordered set of frontier entries keyed by url.
// Every mutating call is all-or-nothing: either the whole new state is persisted or none of it.
type Store interface {
	Close() error
	// Load returns every entry in insertion order.
	Load() ([]domain.FrontierEntry, error)
	// AppendNew adds entries whose url is not yet known, with Scraped=false, and returns how
	// many were added.
	AppendNew(entries []domain.FrontierEntry) (int, error)
	// Pending returns entries with Scraped=false in insertion order.
	Pending() ([]domain.FrontierEntry, error)
	// MarkScraped sets the flag of url to true.
	MarkScraped(url string) error
	// ResetAll clears every flag.
	ResetAll() error
	// Label returns the label recorded for url.
	Label(url string) (string, bool, error)
}

var (
	// ErrCorruptEntry is returned when persisted frontier state cannot be parsed.
	ErrCorruptEntry = errors.New("corrupt frontier entry")
	// ErrUnknownURL is returned when a status update targets a url that is not in the frontier.
	ErrUnknownURL = errors.New("url not in frontier")
)

const (
	TypeFile  = "file"
	TypeBBolt = "bbolt"
)

// NewStore creates the configured frontier backend.
func NewStore(typ, path string) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("frontier storage requires a path")
	}

	switch typ {
	case "", TypeFile:
		return openFile(path)
	case TypeBBolt:
		return openBolt(path)
	default:
		return nil, fmt.Errorf("unsupported frontier type %q", typ)
	}
}

// sanitizeEntry trims the entry and removes anything that would break the line format.
func sanitizeEntry(e domain.FrontierEntry) domain.FrontierEntry {
	clean := func(s string) string {
		s = strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
		for strings.Contains(s, fieldSeparator) {
			s = strings.ReplaceAll(s, fieldSeparator, " ")
		}
		return strings.TrimSpace(s)
	}
	return domain.FrontierEntry{URL: clean(e.URL), Label: clean(e.Label)}
}

// newEntries filters candidates down to sanitized entries whose url is not in known.
// known is updated in place.
func newEntries(known map[string]struct{}, candidates []domain.FrontierEntry) []domain.FrontierEntry {
	var out []domain.FrontierEntry
	for _, c := range candidates {
		e := sanitizeEntry(c)
		if e.URL == "" {
			continue
		}
		if _, ok := known[e.URL]; ok {
			continue
		}
		known[e.URL] = struct{}{}
		out = append(out, e)
	}
	return out
}

func pendingOf(entries []domain.FrontierEntry) []domain.FrontierEntry {
	out := make([]domain.FrontierEntry, 0, len(entries))
	for _, e := range entries {
		if !e.Scraped {
			out = append(out, e)
		}
	}
	return out
}
