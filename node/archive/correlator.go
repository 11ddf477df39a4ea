package archive

import (
	"sync"

	"github.com/processone/fluux-messenger-sub003/types/archive"
)

// Correlator routes forwarded results to the query that requested them.
// Results for query ids that are not registered are discarded.
type Correlator struct {
	mu      sync.Mutex
	pending map[string][]*archive.ForwardedMessage
}

func NewCorrelator() *Correlator {
	return &Correlator{
		pending: make(map[string][]*archive.ForwardedMessage),
	}
}

// Register starts collecting results for queryID.
func (c *Correlator) Register(queryID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[queryID] = []*archive.ForwardedMessage{}
}

// Handle is an archive.ResultHandler.
func (c *Correlator) Handle(msg *archive.ForwardedMessage) {
	if msg == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	results, ok := c.pending[msg.QueryID]
	if !ok {
		uncorrelatedResultsTotal.Inc()
		return
	}
	c.pending[msg.QueryID] = append(results, msg)
}

// Take returns the results collected for queryID in arrival order and stops
// collecting for it.
func (c *Correlator) Take(queryID string) []*archive.ForwardedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	results := c.pending[queryID]
	delete(c.pending, queryID)
	return results
}

// Pending reports the number of registered queries.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
