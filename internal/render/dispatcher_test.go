package render

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Gopher0727/ChatTimeline/internal/model"
)

// recorder returns a renderer appending name to calls and answering handled.
func recorder(calls *[]string, name string, handled bool) Renderer {
	return func(c *Content, m *model.Message, prev *model.Message) (bool, error) {
		*calls = append(*calls, name)
		return handled, nil
	}
}

func TestRegisterRenderer_ChainOrder(t *testing.T) {
	var calls []string
	d := NewDispatcher(nil)
	d.RegisterRenderer(recorder(&calls, "P1", false), PreRender)
	d.RegisterRenderer(recorder(&calls, "P2", false), PreRender)
	d.RegisterRenderer(recorder(&calls, "Q1", false), PostRender)
	d.RegisterRenderer(recorder(&calls, "Q2", false), PostRender)

	d.Render(NewContent(), &model.Message{ID: 1, Content: "x"}, nil)

	assert.Equal(t, []string{"P2", "P1", "Q1", "Q2"}, calls)
}

func TestRender_ShortCircuit(t *testing.T) {
	tests := []struct {
		name     string
		handled  string
		expected []string
	}{
		{"newest pre handles", "P2", []string{"P2"}},
		{"oldest pre handles", "P1", []string{"P2", "P1"}},
		{"post handles", "Q1", []string{"P2", "P1", "Q1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []string
			d := NewDispatcher(nil)
			d.RegisterRenderer(recorder(&calls, "P1", tt.handled == "P1"), PreRender)
			d.RegisterRenderer(recorder(&calls, "P2", tt.handled == "P2"), PreRender)
			d.RegisterRenderer(recorder(&calls, "Q1", tt.handled == "Q1"), PostRender)
			d.RegisterRenderer(recorder(&calls, "Q2", false), PostRender)

			d.Render(NewContent(), &model.Message{ID: 1}, nil)
			assert.Equal(t, tt.expected, calls)
		})
	}
}

func TestRender_SkipsUnchangedRenderedContent(t *testing.T) {
	var calls []string
	d := NewDispatcher(nil)
	d.RegisterRenderer(recorder(&calls, "R", false), PreRender)

	old := &model.Message{ID: 1, Content: "same"}
	updated := &model.Message{ID: 1, Content: "same", Votes: map[model.Vote]int{model.VoteStar: 1}}

	c := &Content{HTML: "same <div class=\"box\">42</div>"}
	d.Render(c, updated, old)
	assert.Empty(t, calls)
	assert.Contains(t, c.HTML, "box")

	// empty container is rendered even with unchanged text
	d.Render(NewContent(), updated, old)
	assert.Equal(t, []string{"R"}, calls)

	// changed text is rendered
	d.Render(c, &model.Message{ID: 1, Content: "other"}, old)
	assert.Equal(t, []string{"R", "R"}, calls)
}

func TestRender_FailingHandlerDoesNotStopChain(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	d := NewDispatcher(zap.New(core))

	var calls []string
	d.RegisterRenderer(recorder(&calls, "last", false), PostRender)
	d.RegisterRenderer(func(*Content, *model.Message, *model.Message) (bool, error) {
		calls = append(calls, "err")
		return true, errors.New("plugin broken")
	}, PreRender)
	d.RegisterRenderer(func(*Content, *model.Message, *model.Message) (bool, error) {
		calls = append(calls, "panic")
		panic("nil map")
	}, PreRender)

	require.NotPanics(t, func() {
		d.Render(NewContent(), &model.Message{ID: 3}, nil)
	})
	assert.Equal(t, []string{"panic", "err", "last"}, calls)
	assert.Equal(t, 2, logs.FilterMessage("renderer failed").Len())
}

func TestUnrender(t *testing.T) {
	var calls []string
	d := NewDispatcher(nil)
	unrenderer := func(name string, handled bool) Unrenderer {
		return func(c *Content, m *model.Message) (bool, error) {
			calls = append(calls, name)
			return handled, nil
		}
	}
	d.RegisterUnrenderer(unrenderer("U1", false))
	d.RegisterUnrenderer(unrenderer("U2", true))
	d.RegisterUnrenderer(unrenderer("U3", false))
	d.RegisterUnrenderer(func(*Content, *model.Message) (bool, error) {
		panic("boom")
	})

	d.Unrender(NewContent(), &model.Message{ID: 1})
	assert.Equal(t, []string{"U3", "U2"}, calls)
}

func TestTextRenderer(t *testing.T) {
	d := NewDispatcher(nil)
	d.RegisterRenderer(d.TextRenderer(), PreRender)

	c := NewContent()
	d.Render(c, &model.Message{ID: 1, Content: "a < b\nc"}, nil)
	assert.Equal(t, "a &lt; b<br>c", c.HTML)
}

func TestBox(t *testing.T) {
	t.Run("replaces rendered fragment", func(t *testing.T) {
		d := NewDispatcher(nil)
		c := &Content{HTML: "total: 3 &lt; 4<br>done"}

		err := d.Box(c, BoxArgs{MessageID: 7, From: "3 < 4", To: "<b>true</b>", Class: "calc"})
		require.NoError(t, err)
		assert.Equal(t, `total: <div class="box calc"><b>true</b></div><br>done`, c.HTML)
		assert.True(t, c.HasClass("wide"))
	})

	t.Run("leaves content untouched when fragment is gone", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		d := NewDispatcher(zap.New(core))
		c := &Content{HTML: "edited since"}

		err := d.Box(c, BoxArgs{MessageID: 7, From: "3 < 4", To: "x"})
		assert.ErrorIs(t, err, ErrFragmentNotFound)
		assert.Equal(t, "edited since", c.HTML)
		assert.False(t, c.HasClass("wide"))
		assert.Equal(t, 1, logs.FilterMessage("boxing failed").Len())
	})

	t.Run("custom formatter", func(t *testing.T) {
		d := NewDispatcher(nil, WithFormatter(func(s string) string { return "<p>" + s + "</p>" }))
		c := &Content{HTML: "<p>x</p><p>y</p>"}
		require.NoError(t, d.Box(c, BoxArgs{MessageID: 1, From: "y", To: "Y"}))
		assert.Equal(t, `<p>x</p><div class="box">Y</div>`, c.HTML)
	})

	t.Run("links open in a new tab", func(t *testing.T) {
		d := NewDispatcher(nil)
		c := &Content{HTML: "see wiki"}
		to := `<a href="https://a.example">a</a> <a target="_self" href="/b">b</a>`
		require.NoError(t, d.Box(c, BoxArgs{MessageID: 1, From: "wiki", To: to}))
		assert.Equal(t,
			`see <div class="box"><a target="_blank" href="https://a.example">a</a> <a target="_self" href="/b">b</a></div>`,
			c.HTML)
	})
}

func TestContentClasses(t *testing.T) {
	c := NewContent()
	assert.False(t, c.HasText())
	c.AddClass("wide")
	c.AddClass("closed")
	assert.Equal(t, []string{"closed", "wide"}, c.Classes())
	c.RemoveClass("closed")
	assert.Equal(t, []string{"wide"}, c.Classes())
}
