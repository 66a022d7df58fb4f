package transaction

import (
	"sync"

	"reldb/pkg/primitives"
)

// Registry is the process-wide transaction table: every transaction
// that has begun, keyed by id, plus the id and timestamp generators.
// The mutex guards only map mutation; transactions guard their own
// state.
type Registry struct {
	mu     sync.Mutex
	txns   map[primitives.TxnID]*Transaction
	nextID primitives.TxnID
	nextTS primitives.Timestamp
}

// NewRegistry creates an empty transaction table.
func NewRegistry() *Registry {
	return &Registry{txns: make(map[primitives.TxnID]*Transaction)}
}

// Begin registers a transaction and moves it to GROWING. A nil
// argument creates a new transaction with a fresh id and timestamp.
func (r *Registry) Begin(txn *Transaction) *Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()

	if txn == nil {
		txn = New(r.nextID, r.nextTS)
		r.nextID++
		r.nextTS++
	}
	r.txns[txn.ID()] = txn
	txn.SetState(primitives.TxnGrowing)
	return txn
}

// Get looks a transaction up by id.
func (r *Registry) Get(id primitives.TxnID) (*Transaction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	txn, ok := r.txns[id]
	return txn, ok
}

// Active returns every registered transaction in a non-terminal state.
func (r *Registry) Active() []*Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Transaction, 0, len(r.txns))
	for _, txn := range r.txns {
		if !txn.State().Terminal() {
			out = append(out, txn)
		}
	}
	return out
}
