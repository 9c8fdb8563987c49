package migration

import (
	"sync"
)

// tenantLocker grants at most one in-flight migration operation per tenant.
// Acquisition never blocks: a caller that loses the race gets a busy answer
// and reports it, rather than queueing behind the holder. Locks for distinct
// tenants are independent.
type tenantLocker struct {
	mu    sync.Mutex
	slots map[int]chan struct{}
}

func newTenantLocker() *tenantLocker {
	return &tenantLocker{
		slots: map[int]chan struct{}{},
	}
}

// TryLock attempts to take the tenant's slot. On success it returns a
// release func that must be called exactly once, on every exit path.
func (l *tenantLocker) TryLock(tenantID int) (release func(), ok bool) {
	l.mu.Lock()
	slot, ok := l.slots[tenantID]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[tenantID] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot
			})
		}, true
	default:
		return nil, false
	}
}
