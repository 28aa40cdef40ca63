package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvaluationBackoff(t *testing.T) {
	assert.Equal(t, 60*time.Second, EvaluationBackoff(1))
	assert.Equal(t, 120*time.Second, EvaluationBackoff(2))
	assert.Equal(t, 240*time.Second, EvaluationBackoff(3))
	// Caps at 10 minutes even for large attempt counts.
	assert.Equal(t, 10*time.Minute, EvaluationBackoff(10))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NewError(KindNotFound, "x", "not found")))
	assert.Equal(t, KindFatal, KindOf(assert.AnError))
	wrapped := Wrap(KindUpstream, "x", "upstream failure", assert.AnError)
	assert.Equal(t, KindUpstream, KindOf(wrapped))
}
