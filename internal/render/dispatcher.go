package render

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/Gopher0727/ChatTimeline/internal/model"
)

var ErrFragmentNotFound = errors.New("fragment not found in rendered content")

// Phase selects the chain a renderer joins.
type Phase int

const (
	// PreRender handlers run before the standard renderer, newest first.
	PreRender Phase = iota
	// PostRender handlers run after it, oldest first, and see its output.
	PostRender
)

// Renderer renders message m into c. prev is the replaced version when the
// message is re-rendered after an update, nil otherwise. Returning true
// stops the chain.
type Renderer func(c *Content, m *model.Message, prev *model.Message) (handled bool, err error)

// Unrenderer tears down what a renderer put in c. Returning true stops the chain.
type Unrenderer func(c *Content, m *model.Message) (handled bool, err error)

// Formatter turns message text into markup.
type Formatter func(text string) string

// Sizer re-applies auto-sizing after a content was changed in place.
type Sizer interface {
	Resize(messageID int64, c *Content)
}

// NopSizer ignores resize requests.
type NopSizer struct{}

func (NopSizer) Resize(int64, *Content) {}

// BoxArgs describes a value substitution in a displayed message.
type BoxArgs struct {
	MessageID int64  `json:"mid"`
	From      string `json:"from"`
	To        string `json:"to"`
	Class     string `json:"class,omitempty"`
}

// Dispatcher holds the ordered renderer and unrenderer chains.
// It is built once at startup and handed to every component that displays messages.
type Dispatcher struct {
	pre         []Renderer
	post        []Renderer
	unrenderers []Unrenderer
	format      Formatter
	logger      *zap.Logger
}

type Option func(*Dispatcher)

// WithFormatter replaces the text to markup conversion used by the
// standard renderer and by Box.
func WithFormatter(f Formatter) Option {
	return func(d *Dispatcher) { d.format = f }
}

func NewDispatcher(logger *zap.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		format: EscapeText,
		logger: logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RegisterRenderer adds r to the pre-render chain (prepended) or to the
// post-render chain (appended).
func (d *Dispatcher) RegisterRenderer(r Renderer, phase Phase) {
	if phase == PostRender {
		d.post = append(d.post, r)
		return
	}
	d.pre = append([]Renderer{r}, d.pre...)
}

// RegisterUnrenderer prepends u to the unrender chain.
func (d *Dispatcher) RegisterUnrenderer(u Unrenderer) {
	d.unrenderers = append([]Unrenderer{u}, d.unrenderers...)
}

// Render runs the renderer chains on c. Nothing is done when prev has the
// same text and c is already rendered, so that in-place replacements (boxes)
// made by post-renderers survive vote or pin updates.
func (d *Dispatcher) Render(c *Content, m *model.Message, prev *model.Message) {
	if prev != nil && prev.Content == m.Content && c.HasText() {
		return
	}
	for i, r := range d.pre {
		if d.callRenderer("pre", i, r, c, m, prev) {
			return
		}
	}
	for i, r := range d.post {
		if d.callRenderer("post", i, r, c, m, prev) {
			return
		}
	}
}

// Unrender runs the unrender chain on c, newest registered first.
func (d *Dispatcher) Unrender(c *Content, m *model.Message) {
	for i, u := range d.unrenderers {
		handled, err := d.guard(func() (bool, error) { return u(c, m) })
		if err != nil {
			d.logger.Error("unrenderer failed",
				zap.Int("position", i),
				zap.Int64("message_id", m.ID),
				zap.Error(err))
			continue
		}
		if handled {
			return
		}
	}
}

func (d *Dispatcher) callRenderer(chain string, i int, r Renderer, c *Content, m, prev *model.Message) bool {
	handled, err := d.guard(func() (bool, error) { return r(c, m, prev) })
	if err != nil {
		d.logger.Error("renderer failed",
			zap.String("chain", chain),
			zap.Int("position", i),
			zap.Int64("message_id", m.ID),
			zap.Error(err))
		return false
	}
	return handled
}

// guard converts a handler panic into an error.
func (d *Dispatcher) guard(fn func() (bool, error)) (handled bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			handled, err = false, fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// Format converts text with the dispatcher's formatter.
func (d *Dispatcher) Format(text string) string {
	return d.format(text)
}

// TextRenderer is the standard renderer: it writes the formatted content
// and lets the post-renderers run.
func (d *Dispatcher) TextRenderer() Renderer {
	return func(c *Content, m *model.Message, _ *model.Message) (bool, error) {
		c.HTML = d.format(m.Content)
		return false, nil
	}
}

// Box replaces the rendered form of args.From in c with a box holding args.To.
// c is left untouched when the fragment can't be found, which happens when
// the message changed after the substitution was computed.
func (d *Dispatcher) Box(c *Content, args BoxArgs) error {
	from := d.format(args.From)
	if from == "" || !strings.Contains(c.HTML, from) {
		d.logger.Warn("boxing failed",
			zap.Int64("message_id", args.MessageID),
			zap.String("from", args.From))
		return fmt.Errorf("box message %d: %w", args.MessageID, ErrFragmentNotFound)
	}
	class := "box"
	if args.Class != "" {
		class += " " + args.Class
	}
	box := `<div class="` + html.EscapeString(class) + `">` + blankTargets(args.To) + `</div>`
	c.HTML = strings.Replace(c.HTML, from, box, 1)
	c.AddClass("wide")
	return nil
}

var anchorRegexp = regexp.MustCompile(`<a\s[^>]*>`)

// blankTargets opens the links of a box in a new tab, keeping explicit targets.
func blankTargets(s string) string {
	return anchorRegexp.ReplaceAllStringFunc(s, func(tag string) string {
		if strings.Contains(tag, "target=") {
			return tag
		}
		return `<a target="_blank"` + tag[2:]
	})
}

// EscapeText is the default formatter: escaped text, one <br> per line break.
func EscapeText(text string) string {
	return strings.ReplaceAll(html.EscapeString(text), "\n", "<br>")
}
