package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemberSet_DedupAndOrder(t *testing.T) {
	s := NewMemberSet("10.0.0.5", "", "10.0.0.9", "10.0.0.5")
	assert.Equal(t, []string{"10.0.0.5", "10.0.0.9"}, s.Slice())
}

func TestMemberSet_WithWithoutAreIdempotent(t *testing.T) {
	s := NewMemberSet("10.0.0.5")

	added := s.With("10.0.0.9").With("10.0.0.9")
	assert.Equal(t, []string{"10.0.0.5", "10.0.0.9"}, added.Slice())
	assert.Equal(t, 1, s.Len(), "original set must not be mutated")

	removed := added.Without("10.0.0.5").Without("10.0.0.5")
	assert.Equal(t, []string{"10.0.0.9"}, removed.Slice())
}

func TestMemberSet_EqualIgnoresOrder(t *testing.T) {
	a := NewMemberSet("1.1.1.1", "2.2.2.2")
	b := NewMemberSet("2.2.2.2", "1.1.1.1")
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(NewMemberSet("1.1.1.1")))
}

func TestMemberSet_ComparesCanonicalAddresses(t *testing.T) {
	s := NewMemberSet("fd00::1", "FD00:0::1", "10.0.0.0/24")
	assert.Equal(t, []string{"fd00::1", "10.0.0.0/24"}, s.Slice())

	assert.True(t, s.Contains("FD00::1"))
	assert.Equal(t, 2, s.With("fd00:0:0::1").Len())
	assert.Equal(t, []string{"10.0.0.0/24"}, s.Without("FD00::1").Slice())
	assert.True(t, s.Equal(NewMemberSet("10.0.0.0/24", "fd00:0000::1")))
	assert.False(t, s.Contains("10.0.0.0/25"))
}

func TestStateMapping(t *testing.T) {
	assert.Equal(t, On, StateForIntent(Allow))
	assert.Equal(t, Off, StateForIntent(Block))
	assert.Equal(t, Off, StateFor(true))
	assert.Equal(t, On, StateFor(false))
}

func TestErrorTaxonomy(t *testing.T) {
	remote := &RemoteError{Op: "reload", Status: 503, Body: "busy"}
	reload := &ReloadFailedError{Alias: "Blocked", Err: remote}

	assert.True(t, errors.Is(reload, ErrReloadFailed))
	assert.True(t, errors.Is(reload, ErrRemote))
	assert.True(t, remote.Temporary())
	assert.False(t, (&RemoteError{Status: 404}).Temporary())
	assert.True(t, errors.Is(&AliasNotFoundError{Alias: "x"}, ErrAliasNotFound))
	assert.True(t, errors.Is(&ParseError{Reason: "empty"}, ErrParse))
	assert.True(t, errors.Is(&TransportError{Op: "fetch", Err: errors.New("refused")}, ErrTransport))
}

func TestParseIntent(t *testing.T) {
	i, err := ParseIntent("on")
	assert.NoError(t, err)
	assert.Equal(t, Allow, i)

	_, err = ParseIntent("maybe")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
