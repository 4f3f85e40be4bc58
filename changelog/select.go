package changelog

// Selection is a version picked for display. Index is its position in the
// selection, which is document order when listing every version.
type Selection struct {
	Index   int
	Label   string
	Version Version
}

// Select picks the versions to display: every version in document order
// when listAll is set, otherwise only the current one. A changelog with no
// versions selects nothing.
func (c *Changelog) Select(listAll bool) []Selection {
	if !listAll {
		ver, ok := c.Lookup(c.Current)
		if !ok {
			return nil
		}
		return []Selection{{Index: 0, Label: c.Current, Version: ver}}
	}

	out := make([]Selection, 0, len(c.Versions))
	for i, e := range c.Versions {
		out = append(out, Selection{Index: i, Label: e.Label, Version: e.Version})
	}
	return out
}
