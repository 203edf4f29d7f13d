package daemon

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/pkg/errors"

	"github.com/fluxcd/compose-sync/pkg/reconcile"
)

const DefaultMessageTemplate = `Update images in {{ .ComposeFile }}`

var defaultTemplate = template.Must(newTemplate(DefaultMessageTemplate))

// DefaultMessage renders DefaultMessageTemplate for a compose file
// called docker-compose.yml. Use NewMessage to name the actual file.
var DefaultMessage = mustMessage(DefaultMessageTemplate, "docker-compose.yml")

// Message renders commit messages from a text/template, which has the
// sprig functions available. The template is given a MessageData.
type Message struct {
	composeFile string
	tmpl        *template.Template

	// the default message, for when tmpl can't describe leftovers
	fallback string
}

// MessageData is what a commit message template can refer to.
type MessageData struct {
	// ComposeFile is the repo-relative path of the compose file
	ComposeFile string

	// Updates lists the services updated, and is empty when publishing
	// changes left by an earlier run.
	Updates []reconcile.Drift
}

func NewMessage(text, composeFile string) (*Message, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultMessageTemplate
	}
	tmpl, err := newTemplate(text)
	if err != nil {
		return nil, errors.Wrap(err, "parsing commit message template")
	}
	fallback, err := execute(defaultTemplate, MessageData{ComposeFile: composeFile})
	if err != nil {
		return nil, err
	}
	m := &Message{composeFile: composeFile, tmpl: tmpl, fallback: fallback}
	// catch references to fields that don't exist now, rather than
	// when there's something to commit
	if _, err := m.Render([]reconcile.Drift{{Service: "web", Kind: reconcile.DriftUpdate}}); err != nil {
		return nil, err
	}
	return m, nil
}

func newTemplate(text string) (*template.Template, error) {
	return template.New("commit").Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(text)
}

func mustMessage(text, composeFile string) *Message {
	m, err := NewMessage(text, composeFile)
	if err != nil {
		panic(err)
	}
	return m
}

// Render returns the commit message for the updates given.
func (m *Message) Render(updates []reconcile.Drift) (string, error) {
	return execute(m.tmpl, MessageData{ComposeFile: m.composeFile, Updates: updates})
}

// RenderLeftovers returns the message for publishing changes left by
// an earlier run, which has no updates to describe. A template that
// can't render a message without updates gives the default message.
func (m *Message) RenderLeftovers() string {
	if msg, err := m.Render(nil); err == nil {
		return msg
	}
	return m.fallback
}

func execute(tmpl *template.Template, data MessageData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "rendering commit message")
	}
	msg := strings.TrimSpace(buf.String())
	if msg == "" {
		return "", errors.New("commit message template rendered an empty message")
	}
	return msg, nil
}
