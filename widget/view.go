package widget

// ChangeView is the JSON form of a change.
type ChangeView struct {
	ID      string `json:"id,omitempty"`
	Content string `json:"content"`
	URL     string `json:"url,omitempty"`
}

// VersionView is the JSON form of a prepared version.
type VersionView struct {
	Label    string       `json:"label"`
	Title    string       `json:"title,omitempty"`
	MediaURL string       `json:"media_url,omitempty"`
	Changes  []ChangeView `json:"changes"`
}

// Views converts prepared versions to their JSON form, keeping their order.
func Views(versions []PreparedVersion, featureURLTemplate string) []VersionView {
	out := make([]VersionView, len(versions))
	for i, v := range versions {
		view := VersionView{
			Label:    v.Label,
			Title:    v.Source.Info.Title,
			MediaURL: v.MediaURL,
			Changes:  make([]ChangeView, len(v.Source.Changes)),
		}
		for j, c := range v.Source.Changes {
			cv := ChangeView{ID: c.ID, Content: c.Content}
			if c.Linkable() {
				cv.URL = featureURLTemplate + c.ID
			}
			view.Changes[j] = cv
		}
		out[i] = view
	}
	return out
}
