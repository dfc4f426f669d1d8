package chat

import "strings"

// View is one of the mutually exclusive panels of the site.
type View string

const (
	ViewHome    View = "home"
	ViewChat    View = "chat"
	ViewGallery View = "gallery"
	ViewAbout   View = "about"
)

// Views lists every view in menu order.
var Views = []View{ViewHome, ViewChat, ViewGallery, ViewAbout}

// ParseView accepts a view name case-insensitively.
func ParseView(s string) (View, error) {
	v := View(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Views {
		if v == known {
			return v, nil
		}
	}
	return "", ErrUnknownView
}
