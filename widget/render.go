package widget

import (
	"path"
	"strings"
)

// Placeholder text shown when there is nothing to list.
const (
	LoadingMessage = "Loading..."
	EmptyMessage   = "We have no changes to display :/... What?"
)

// Kind identifies the type of a render tree node.
type Kind int

const (
	KindBlock Kind = iota
	KindText
	KindList
	KindHeading
	KindMedia
	KindItem
	KindLink
	KindRule
)

var kindNames = [...]string{
	KindBlock:   "block",
	KindText:    "text",
	KindList:    "list",
	KindHeading: "heading",
	KindMedia:   "media",
	KindItem:    "item",
	KindLink:    "link",
	KindRule:    "rule",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Node is an element of the render tree handed to a renderer.
type Node struct {
	Kind     Kind
	Text     string
	Children []*Node

	// Level is the heading level, 2 or 3.
	Level int

	// URL is the link target or the media source.
	URL string

	// Description is the media caption.
	Description string

	// NewWindow and StopPropagation describe link activation: the target
	// opens in a new browsing context and the click does not bubble.
	NewWindow       bool
	StopPropagation bool
}

var videoExtensions = map[string]bool{
	".mp4":  true,
	".webm": true,
	".ogv":  true,
	".mov":  true,
}

// IsVideo reports whether a media node points at a video.
func (n *Node) IsVideo() bool {
	u := n.URL
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return videoExtensions[strings.ToLower(path.Ext(u))]
}

// Project builds the render tree for a widget state and its prepared
// versions, in the order given. featureURLTemplate is prefixed to change IDs
// to build links. The result depends only on its arguments.
func Project(state State, versions []PreparedVersion, featureURLTemplate string) *Node {
	root := &Node{Kind: KindBlock}

	if len(versions) == 0 {
		msg := EmptyMessage
		if state == Loading {
			msg = LoadingMessage
		}
		root.Children = append(root.Children, &Node{Kind: KindText, Text: msg})
		return root
	}

	for _, v := range versions {
		root.Children = append(root.Children, projectVersion(v, featureURLTemplate))
	}
	return root
}

func projectVersion(v PreparedVersion, featureURLTemplate string) *Node {
	list := &Node{Kind: KindList}

	header := &Node{Kind: KindBlock}
	if title := v.Source.Info.Title; title != "" {
		header.Children = append(header.Children,
			&Node{Kind: KindHeading, Level: 2, Text: title},
			&Node{Kind: KindHeading, Level: 3, Text: v.Label},
		)
	} else {
		header.Children = append(header.Children, &Node{Kind: KindHeading, Level: 2, Text: v.Label})
	}
	list.Children = append(list.Children, header)

	if v.HasMedia() {
		list.Children = append(list.Children, &Node{Kind: KindMedia, URL: v.MediaURL})
	}

	for _, c := range v.Source.Changes {
		item := &Node{Kind: KindItem}
		if c.Linkable() {
			item.Children = append(item.Children, &Node{
				Kind:            KindLink,
				Text:            c.Content,
				URL:             featureURLTemplate + c.ID,
				NewWindow:       true,
				StopPropagation: true,
			})
		} else {
			item.Text = c.Content
		}
		list.Children = append(list.Children, item)
	}

	list.Children = append(list.Children, &Node{Kind: KindRule})
	return list
}
