package sampler

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlwaysPass(t *testing.T) {
	passed, meta := AlwaysPass{}.Sample("anything")
	assert.True(t, passed)
	assert.Nil(t, meta)
}

func TestRatioOneAlwaysPasses(t *testing.T) {
	s := New(Config{BaseRatio: 1.0})
	for i := 0; i < 20; i++ {
		passed, meta := s.Sample("msg")
		assert.True(t, passed)
		require.NotNil(t, meta)
	}
}

func TestRatioZeroAlwaysDrops(t *testing.T) {
	s := New(Config{BaseRatio: 0.0})
	passed, meta := s.Sample("msg")
	assert.False(t, passed)
	assert.Nil(t, meta)
}

func TestSameMessageSamplesDeterministically(t *testing.T) {
	s := New(Config{BaseRatio: 0.5})
	first, _ := s.Sample("stable-message")
	for i := 0; i < 10; i++ {
		again, _ := s.Sample("stable-message")
		assert.Equal(t, first, again)
	}
}

func TestRuleOverridesBaseRatio(t *testing.T) {
	s := New(Config{
		BaseRatio: 0.0,
		Rules: []Rule{
			{Pattern: regexp.MustCompile(`^healthcheck`), Ratio: 1.0},
		},
	})
	passed, meta := s.Sample("healthcheck ok")
	assert.True(t, passed)
	require.NotNil(t, meta)
}
