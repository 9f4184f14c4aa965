package bridge

// PendingCall is an outbound call that has been marshaled but not yet
// handed to the environment.
type PendingCall struct {
	ID         string
	Function   string
	Expression string
}

// callQueue buffers calls made before the environment is ready.
type callQueue struct {
	calls []PendingCall
}

func (q *callQueue) push(c PendingCall) {
	q.calls = append(q.calls, c)
}

// drain removes and returns every queued call, oldest first.
func (q *callQueue) drain() []PendingCall {
	calls := q.calls
	q.calls = nil
	return calls
}

func (q *callQueue) len() int {
	return len(q.calls)
}
