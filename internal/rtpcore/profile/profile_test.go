package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrdering(t *testing.T) {
	assert.Less(t, int(None), int(Default))
	assert.Less(t, int(Default), int(Low))
	assert.Less(t, int(Low), int(Medium))
	assert.Less(t, int(Medium), int(High))
}

func TestParseRoundTrip(t *testing.T) {
	for _, p := range []Profile{None, Default, Low, Medium, High} {
		got, ok := Parse(p.String())
		assert.True(t, ok)
		assert.Equal(t, p, got)
	}
}

func TestKindSupportsPLI(t *testing.T) {
	assert.False(t, Audio.SupportsPLI())
	assert.True(t, Video.SupportsPLI())
	assert.True(t, Depth.SupportsPLI())
}
