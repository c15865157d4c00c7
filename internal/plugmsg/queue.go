package plugmsg

// MinQueueLimit is the smallest limit a Queue accepts. It leaves room for
// one pending value of every state kind.
const MinQueueLimit = 32

// Queue holds outbound messages between flushes.
//
// State kinds are coalesced: a pending value is replaced in place by a newer
// one, and a value equal to the last one flushed is not queued at all.
// Triggers are kept in FIFO order; once the queue holds limit entries the
// oldest trigger is dropped. Queue is not safe for concurrent use.
type Queue struct {
	limit   int
	entries []Message
	sent    map[Kind]Message
	dropped int
}

// NewQueue returns an empty queue bounded to limit entries.
func NewQueue(limit int) *Queue {
	if limit < MinQueueLimit {
		limit = MinQueueLimit
	}
	return &Queue{limit: limit, sent: make(map[Kind]Message)}
}

// Push adds m to the queue. It reports false when m was absorbed because it
// restates a value that is already current.
func (q *Queue) Push(m Message) bool {
	if m.Kind == KindUnsetBackground {
		q.Invalidate(KindSetBackgroundColor, KindSetBackgroundImage)
	}
	if !m.Kind.IsState() {
		if len(q.entries) >= q.limit {
			q.dropOldestTrigger()
		}
		q.entries = append(q.entries, m)
		return true
	}

	last, wasSent := q.sent[m.Kind]
	for i, e := range q.entries {
		if e.Kind != m.Kind {
			continue
		}
		if wasSent && last == m {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return false
		}
		q.entries[i] = m
		return true
	}
	if wasSent && last == m {
		return false
	}
	if len(q.entries) >= q.limit {
		q.dropOldestTrigger()
	}
	q.entries = append(q.entries, m)
	return true
}

func (q *Queue) dropOldestTrigger() {
	for i, e := range q.entries {
		if !e.Kind.IsState() {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			q.dropped++
			return
		}
	}
}

// Drain removes and returns every pending message in send order, recording
// state values as sent.
func (q *Queue) Drain() []Message {
	out := q.entries
	q.entries = nil
	for _, m := range out {
		if m.Kind.IsState() {
			q.sent[m.Kind] = m
		}
	}
	return out
}

// Invalidate drops pending values of the given state kinds and forgets their
// last sent value, so the next Push of each is queued.
func (q *Queue) Invalidate(kinds ...Kind) {
	for _, k := range kinds {
		delete(q.sent, k)
		kept := q.entries[:0]
		for _, e := range q.entries {
			if e.Kind != k {
				kept = append(kept, e)
			}
		}
		q.entries = kept
	}
}

// LastSent returns the last flushed value of a state kind.
func (q *Queue) LastSent(k Kind) (Message, bool) {
	m, ok := q.sent[k]
	return m, ok
}

// Forget clears the sent snapshot so the next Push of every kind is queued.
func (q *Queue) Forget() {
	q.sent = make(map[Kind]Message)
}

// Len returns the number of pending entries.
func (q *Queue) Len() int { return len(q.entries) }

// Dropped returns how many triggers were discarded because the queue was full.
func (q *Queue) Dropped() int { return q.dropped }
