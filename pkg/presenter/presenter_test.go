package presenter

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func newTestPresenter() (*TerminalPresenter, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return NewWithWriters(out, errOut, false), out, errOut
}

func TestTerminalPresenter(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		p, out, _ := newTestPresenter()
		p.Success("resolved skill")
		assert.Contains(t, out.String(), "resolved skill")
	})

	t.Run("error goes to error output", func(t *testing.T) {
		p, out, errOut := newTestPresenter()
		p.Error(errors.New("boom"), "promotion failed")
		assert.Empty(t, out.String())
		assert.Contains(t, errOut.String(), "promotion failed")
		assert.Contains(t, errOut.String(), "boom")
	})

	t.Run("nil error is ignored", func(t *testing.T) {
		p, _, errOut := newTestPresenter()
		p.Error(nil, "context")
		assert.Empty(t, errOut.String())
	})

	t.Run("quiet suppresses non-errors", func(t *testing.T) {
		p, out, errOut := newTestPresenter()
		p.SetQuiet(true)
		p.Success("ok")
		p.Warning("careful")
		p.Info("note")
		p.Section("title")
		assert.Empty(t, out.String())

		p.Error(errors.New("boom"), "still shown")
		assert.Contains(t, errOut.String(), "still shown")
	})
}
