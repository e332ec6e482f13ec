package hub

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertConsistent verifies the bidirectional mapping is intact and no
// poll maps to an empty subscriber set.
func assertConsistent(t *testing.T, s *subscriptionIndex) {
	t.Helper()

	for pollID, subscribers := range s.byPoll {
		require.NotEmpty(t, subscribers, "poll %s has an empty subscriber set", pollID)
		for connID := range subscribers {
			_, ok := s.byConn[connID][pollID]
			require.True(t, ok, "poll %s lists conn %s but the inverse is missing", pollID, connID)
		}
	}
	for connID, polls := range s.byConn {
		require.NotEmpty(t, polls, "conn %s has an empty poll set", connID)
		for pollID := range polls {
			_, ok := s.byPoll[pollID][connID]
			require.True(t, ok, "conn %s lists poll %s but the inverse is missing", connID, pollID)
		}
	}
}

func TestSubscriptionIndex_SubscribeAndSnapshot(t *testing.T) {
	s := newSubscriptionIndex()
	a, b := uuid.New(), uuid.New()

	s.subscribe(a, "p1")
	s.subscribe(b, "p1")
	s.subscribe(a, "p2")
	assertConsistent(t, s)

	assert.ElementsMatch(t, []uuid.UUID{a, b}, s.subscribersOf("p1"))
	assert.ElementsMatch(t, []uuid.UUID{a}, s.subscribersOf("p2"))
	assert.Equal(t, 2, s.pollCount())
	assert.Equal(t, 3, s.subscriptionCount())
}

func TestSubscriptionIndex_SubscribeIsIdempotent(t *testing.T) {
	s := newSubscriptionIndex()
	a := uuid.New()

	s.subscribe(a, "p1")
	s.subscribe(a, "p1")
	assertConsistent(t, s)

	assert.Len(t, s.subscribersOf("p1"), 1)
	assert.Equal(t, 1, s.subscriptionCount())
}

func TestSubscriptionIndex_UnsubscribePrunesEmptyPolls(t *testing.T) {
	s := newSubscriptionIndex()
	a, b := uuid.New(), uuid.New()

	s.subscribe(a, "p1")
	s.subscribe(b, "p1")

	s.unsubscribe(a, "p1")
	assertConsistent(t, s)
	assert.Equal(t, 1, s.pollCount())

	s.unsubscribe(b, "p1")
	assertConsistent(t, s)
	assert.Equal(t, 0, s.pollCount())
	assert.Empty(t, s.subscribersOf("p1"))
}

func TestSubscriptionIndex_UnsubscribeUnknownIsNoop(t *testing.T) {
	s := newSubscriptionIndex()
	s.unsubscribe(uuid.New(), "nope")
	assertConsistent(t, s)
	assert.Equal(t, 0, s.pollCount())
}

func TestSubscriptionIndex_UnsubscribeAll(t *testing.T) {
	s := newSubscriptionIndex()
	a, b := uuid.New(), uuid.New()

	s.subscribe(a, "p1")
	s.subscribe(a, "p2")
	s.subscribe(b, "p2")

	s.unsubscribeAll(a)
	assertConsistent(t, s)

	assert.Empty(t, s.subscribersOf("p1"))
	assert.ElementsMatch(t, []uuid.UUID{b}, s.subscribersOf("p2"))
	assert.Equal(t, 1, s.pollCount())
	assert.Equal(t, 1, s.subscriptionCount())
}

func TestSubscriptionIndex_SnapshotIsDetached(t *testing.T) {
	s := newSubscriptionIndex()
	a, b := uuid.New(), uuid.New()

	s.subscribe(a, "p1")
	s.subscribe(b, "p1")

	snapshot := s.subscribersOf("p1")
	s.unsubscribeAll(a)
	s.unsubscribeAll(b)

	assert.Len(t, snapshot, 2, "snapshot must not observe later mutations")
}

func TestSubscriptionIndex_ConsistencyUnderChurn(t *testing.T) {
	s := newSubscriptionIndex()
	conns := make([]uuid.UUID, 10)
	for i := range conns {
		conns[i] = uuid.New()
	}
	polls := []string{"p1", "p2", "p3", "p4"}

	for i, c := range conns {
		for j, p := range polls {
			if (i+j)%2 == 0 {
				s.subscribe(c, p)
			}
		}
	}
	assertConsistent(t, s)

	for i, c := range conns {
		switch i % 3 {
		case 0:
			s.unsubscribeAll(c)
		case 1:
			s.unsubscribe(c, polls[i%len(polls)])
		}
		assertConsistent(t, s)
	}
}
