// Package changelog loads a product changelog document and selects the
// versions a widget should display.
package changelog

// Change is a single line of a version's changes. An empty ID means the
// change has no feature page to link to.
type Change struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// Linkable reports whether the change points at a feature page.
func (c Change) Linkable() bool {
	return c.ID != ""
}

// Info describes a version. Media is an opaque reference that has to be
// resolved before display; empty means the version has no media.
type Info struct {
	Title string `json:"title"`
	Media string `json:"media"`
}

// Version is one release and its changes, in display order.
type Version struct {
	Info    Info     `json:"info"`
	Changes []Change `json:"changes"`
}

// Entry pairs a version with its label, the key it was stored under.
type Entry struct {
	Label   string
	Version Version
}

// Changelog is a parsed changelog document. Versions keep the order they
// had in the document. It is not modified after Parse returns.
type Changelog struct {
	Current  string
	Versions []Entry
}

// Lookup returns the version stored under label.
func (c *Changelog) Lookup(label string) (Version, bool) {
	for _, e := range c.Versions {
		if e.Label == label {
			return e.Version, true
		}
	}
	return Version{}, false
}

// Labels returns the version labels in document order.
func (c *Changelog) Labels() []string {
	labels := make([]string, len(c.Versions))
	for i, e := range c.Versions {
		labels[i] = e.Label
	}
	return labels
}
