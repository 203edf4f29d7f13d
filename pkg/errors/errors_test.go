package errors

import (
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestIsMissingThroughWrapping(t *testing.T) {
	missing := &Error{Type: Missing, Err: errors.New("not tracked")}
	assert.True(t, IsMissing(missing))
	assert.True(t, IsMissing(pkgerrors.Wrap(missing, "fetching latest")))
	assert.False(t, IsMissing(errors.New("not tracked")))
	assert.False(t, IsMissing(&Error{Type: Server, Err: errors.New("boom")}))
	assert.False(t, IsMissing(nil))
}

func TestHelp(t *testing.T) {
	err := pkgerrors.Wrap(&Error{Type: User, Help: "fix your config", Err: errors.New("bad")}, "context")
	assert.Equal(t, "fix your config", Help(err))
	assert.Equal(t, "", Help(errors.New("plain")))
	assert.Equal(t, "context: bad", err.Error())
}
