package hub

import "github.com/google/uuid"

// subscriptionIndex maps polls to their subscribers and back. It holds
// connection ids only, never connection records, and is owned by the hub
// goroutine, so it needs no locking of its own.
//
// Invariants: a connection id appears in a poll's subscriber set exactly
// when the poll id appears in that connection's poll set, and no poll maps
// to an empty subscriber set.
type subscriptionIndex struct {
	byPoll map[string]map[uuid.UUID]struct{}
	byConn map[uuid.UUID]map[string]struct{}
}

func newSubscriptionIndex() *subscriptionIndex {
	return &subscriptionIndex{
		byPoll: make(map[string]map[uuid.UUID]struct{}),
		byConn: make(map[uuid.UUID]map[string]struct{}),
	}
}

// subscribe records the relation in both directions. Idempotent.
func (s *subscriptionIndex) subscribe(connID uuid.UUID, pollID string) {
	subscribers, ok := s.byPoll[pollID]
	if !ok {
		subscribers = make(map[uuid.UUID]struct{})
		s.byPoll[pollID] = subscribers
	}
	subscribers[connID] = struct{}{}

	polls, ok := s.byConn[connID]
	if !ok {
		polls = make(map[string]struct{})
		s.byConn[connID] = polls
	}
	polls[pollID] = struct{}{}
}

// unsubscribe removes both sides of the relation, pruning emptied entries.
func (s *subscriptionIndex) unsubscribe(connID uuid.UUID, pollID string) {
	if subscribers, ok := s.byPoll[pollID]; ok {
		delete(subscribers, connID)
		if len(subscribers) == 0 {
			delete(s.byPoll, pollID)
		}
	}
	if polls, ok := s.byConn[connID]; ok {
		delete(polls, pollID)
		if len(polls) == 0 {
			delete(s.byConn, connID)
		}
	}
}

// unsubscribeAll removes the connection from every poll it subscribed to.
// Used on disconnect.
func (s *subscriptionIndex) unsubscribeAll(connID uuid.UUID) {
	for pollID := range s.byConn[connID] {
		subscribers := s.byPoll[pollID]
		delete(subscribers, connID)
		if len(subscribers) == 0 {
			delete(s.byPoll, pollID)
		}
	}
	delete(s.byConn, connID)
}

// subscribersOf returns a snapshot of the poll's subscriber ids. Mutations
// after the call are not observed by the returned slice.
func (s *subscriptionIndex) subscribersOf(pollID string) []uuid.UUID {
	subscribers := s.byPoll[pollID]
	if len(subscribers) == 0 {
		return nil
	}
	out := make([]uuid.UUID, 0, len(subscribers))
	for id := range subscribers {
		out = append(out, id)
	}
	return out
}

// pollCount returns the number of polls with at least one subscriber.
func (s *subscriptionIndex) pollCount() int {
	return len(s.byPoll)
}

// subscriptionCount returns the total number of (connection, poll) pairs.
func (s *subscriptionIndex) subscriptionCount() int {
	total := 0
	for _, polls := range s.byConn {
		total += len(polls)
	}
	return total
}
