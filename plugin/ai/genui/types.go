// Package genui builds channel-renderable visual payloads that accompany a
// text reply. The shapes follow the LINE Flex Message schema so the same
// payload can be pushed to LINE and rendered by the web widget.
package genui

// Component is a flex box, text or image node.
type Component struct {
	Type        string       `json:"type"`
	Layout      string       `json:"layout,omitempty"`
	Text        string       `json:"text,omitempty"`
	URL         string       `json:"url,omitempty"`
	Size        string       `json:"size,omitempty"`
	Weight      string       `json:"weight,omitempty"`
	Color       string       `json:"color,omitempty"`
	Align       string       `json:"align,omitempty"`
	Margin      string       `json:"margin,omitempty"`
	Spacing     string       `json:"spacing,omitempty"`
	AspectRatio string       `json:"aspectRatio,omitempty"`
	AspectMode  string       `json:"aspectMode,omitempty"`
	Contents    []*Component `json:"contents,omitempty"`
}

// Bubble is a single flex card.
type Bubble struct {
	Type   string     `json:"type"`
	Header *Component `json:"header,omitempty"`
	Hero   *Component `json:"hero,omitempty"`
	Body   *Component `json:"body,omitempty"`
	Footer *Component `json:"footer,omitempty"`
}

// FlexMessage pairs a bubble with the alt text shown in notifications.
type FlexMessage struct {
	AltText  string  `json:"altText"`
	Contents *Bubble `json:"contents"`
}

func NewBubble() *Bubble {
	return &Bubble{Type: "bubble"}
}

// VerticalBox stacks contents top to bottom.
func VerticalBox(contents ...*Component) *Component {
	return &Component{Type: "box", Layout: "vertical", Contents: contents}
}

// HorizontalBox lays contents out left to right.
func HorizontalBox(contents ...*Component) *Component {
	return &Component{Type: "box", Layout: "horizontal", Contents: contents}
}

func Text(text string) *Component {
	return &Component{Type: "text", Text: text}
}

// Image is a full-width hero image.
func Image(url string) *Component {
	return &Component{Type: "image", URL: url, Size: "full", AspectRatio: "20:13", AspectMode: "fit"}
}

// KeyValueRow renders a label on the left and a bold value on the right.
func KeyValueRow(label, value string) *Component {
	left := Text(label)
	left.Color = "#555555"
	left.Size = "sm"
	right := Text(value)
	right.Align = "end"
	right.Weight = "bold"
	right.Size = "sm"
	return HorizontalBox(left, right)
}
