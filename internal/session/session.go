package session

import (
	"sort"
	"strings"
)

// Session is the explicit context every core operation runs against. It
// owns nothing but the engine handle and a label index built once when the
// session is opened.
type Session struct {
	ID     string
	Label  string
	Engine Engine

	byLabel map[string]Marker
}

// New opens a session over an engine. Marker labels must be unique: the
// engine happily stores two markers with the same label, but then a
// scalebar definition could silently bind to either, so duplicates are
// rejected here with a PreconditionError.
func New(id, label string, e Engine) (*Session, error) {
	s := &Session{ID: id, Label: label, Engine: e}
	if err := s.index(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) index() error {
	markers := s.Engine.Markers()
	byLabel := make(map[string]Marker, len(markers))
	dupes := map[string]bool{}
	for _, m := range markers {
		if _, seen := byLabel[m.Label]; seen {
			dupes[m.Label] = true
			continue
		}
		byLabel[m.Label] = m
	}
	if len(dupes) > 0 {
		labels := make([]string, 0, len(dupes))
		for l := range dupes {
			labels = append(labels, l)
		}
		sort.Strings(labels)
		return Preconditionf(StageLoad, "duplicate marker labels: %s", strings.Join(labels, ", "))
	}
	s.byLabel = byLabel
	return nil
}

// MarkerByLabel looks a marker up by its exact label.
func (s *Session) MarkerByLabel(label string) (Marker, bool) {
	m, ok := s.byLabel[label]
	return m, ok
}

// MarkerCount returns the number of indexed markers.
func (s *Session) MarkerCount() int { return len(s.byLabel) }

// FindScalebar returns the scalebar labeled "a_b" or "b_a", if any.
func (s *Session) FindScalebar(a, b string) (Scalebar, bool) {
	fwd, rev := ScalebarLabel(a, b), ScalebarLabel(b, a)
	for _, sb := range s.Engine.Scalebars() {
		if sb.Label == fwd || sb.Label == rev {
			return sb, true
		}
	}
	return Scalebar{}, false
}
