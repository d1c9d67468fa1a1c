package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "statistics", map[string]int64{"r1": 3})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "statistics", "payload")
	require.NoError(t, err)
	assert.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, 2, pub.Len())
	assert.Equal(t, "payload", msgs[1].Payload)

	msgs[0].Kind = "modified"
	assert.Equal(t, "statistics", pub.Messages()[0].Kind, "Messages returns a copy")
}
