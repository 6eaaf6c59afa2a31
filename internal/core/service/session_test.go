package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionGuard(t *testing.T) {

	assert := assert.New(t)

	g := NewSessionGuard()
	assert.False(g.IsCurrent(""))

	s1 := g.Claim()
	assert.True(g.IsCurrent(s1))

	s2 := g.Claim()
	assert.NotEqual(s1, s2)
	assert.False(g.IsCurrent(s1))
	assert.True(g.IsCurrent(s2))
	assert.Equal(s2, g.Current())
}
