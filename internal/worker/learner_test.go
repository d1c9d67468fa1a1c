package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/websearch/internal/tokenizer"
)

func TestLearnerMergesFrequentWords(t *testing.T) {
	t.Parallel()

	replica := newFakeReplica("r1")
	replica.frequent = []string{"the", "and"}
	frontier := newFakeFrontier()
	frontier.stopwords = []string{"of"}
	tok := tokenizer.New(nil)
	l, err := NewLearner(frontier, &fakeCoordinator{replicas: []string{"r1"}}, fakeDialer{"r1": replica}, tok, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, defaultLearnInterval, l.interval)

	require.NoError(t, l.Learn(context.Background()))
	assert.Equal(t, []string{"and", "of", "the"}, tok.Stopwords())
	assert.True(t, tok.IsStopword("the"))
}

func TestLearnerWithoutReplicasReloadsOnly(t *testing.T) {
	t.Parallel()

	frontier := newFakeFrontier()
	frontier.stopwords = []string{"le"}
	tok := tokenizer.New(nil)
	l, err := NewLearner(frontier, &fakeCoordinator{}, fakeDialer{}, tok, time.Second, nil)
	require.NoError(t, err)

	require.NoError(t, l.Learn(context.Background()))
	assert.Equal(t, []string{"le"}, tok.Stopwords())
}

func TestLearnerErrors(t *testing.T) {
	t.Parallel()

	_, err := NewLearner(nil, nil, nil, nil, 0, nil)
	require.Error(t, err)

	tok := tokenizer.New([]string{"keep"})
	l, err := NewLearner(newFakeFrontier(), &fakeCoordinator{replicas: []string{"gone"}}, fakeDialer{}, tok, 0, nil)
	require.NoError(t, err)
	require.Error(t, l.Learn(context.Background()))
	assert.Equal(t, []string{"keep"}, tok.Stopwords())

	l, err = NewLearner(newFakeFrontier(), &fakeCoordinator{replicasErr: errors.New("gateway down")}, fakeDialer{}, tok, 0, nil)
	require.NoError(t, err)
	require.Error(t, l.Learn(context.Background()))
}

func TestLearnerRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	frontier := newFakeFrontier()
	frontier.stopwords = []string{"ein"}
	tok := tokenizer.New(nil)
	l, err := NewLearner(frontier, &fakeCoordinator{}, fakeDialer{}, tok, 10*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return tok.IsStopword("ein") }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("learner did not stop")
	}
}
