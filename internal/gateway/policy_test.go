package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandomFallbackOrder(t *testing.T) {
	t.Parallel()

	p := RandomFallback{IntN: func(int) int { return 2 }}
	assert.Equal(t, []string{"c", "a", "b", "d"}, p.Order([]string{"a", "b", "c", "d"}))
	assert.Nil(t, p.Order(nil))
}

func TestRandomFallbackVisitsEachOnce(t *testing.T) {
	t.Parallel()

	in := []string{"a", "b", "c"}
	for range 50 {
		got := RandomFallback{}.Order(in)
		assert.ElementsMatch(t, in, got)
	}
}

func TestRoundRobinRotates(t *testing.T) {
	t.Parallel()

	p := &RoundRobin{}
	in := []string{"a", "b", "c"}
	assert.Equal(t, []string{"a", "b", "c"}, p.Order(in))
	assert.Equal(t, []string{"b", "c", "a"}, p.Order(in))
	assert.Equal(t, []string{"c", "a", "b"}, p.Order(in))
	assert.Equal(t, []string{"a", "b", "c"}, p.Order(in))
}

func TestPolicyByName(t *testing.T) {
	t.Parallel()

	assert.IsType(t, &RoundRobin{}, PolicyByName("round_robin"))
	assert.IsType(t, RandomFallback{}, PolicyByName("random"))
	assert.IsType(t, RandomFallback{}, PolicyByName(""))
}
