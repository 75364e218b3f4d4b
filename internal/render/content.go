package render

import (
	"slices"
	"strings"
)

// Content is the rendered body of one displayed message. Renderers write
// markup into HTML and may tag the container with classes ("wide", "closed").
type Content struct {
	HTML    string
	classes map[string]struct{}
}

func NewContent() *Content {
	return &Content{}
}

// HasText reports whether something was already rendered into the container.
func (c *Content) HasText() bool {
	return strings.TrimSpace(c.HTML) != ""
}

func (c *Content) AddClass(class string) {
	if c.classes == nil {
		c.classes = make(map[string]struct{})
	}
	c.classes[class] = struct{}{}
}

func (c *Content) RemoveClass(class string) {
	delete(c.classes, class)
}

func (c *Content) HasClass(class string) bool {
	_, ok := c.classes[class]
	return ok
}

// Classes returns the container classes in sorted order.
func (c *Content) Classes() []string {
	classes := make([]string, 0, len(c.classes))
	for class := range c.classes {
		classes = append(classes, class)
	}
	slices.Sort(classes)
	return classes
}
