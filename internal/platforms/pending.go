package platforms

import (
	"context"
	"sync"

	"github.com/postprober/dashboard-core/internal/models"
)

// OperationState is the lifecycle of an asynchronous connect
type OperationState string

const (
	OperationPending   OperationState = "pending"
	OperationSucceeded OperationState = "succeeded"
	OperationFailed    OperationState = "failed"
)

// PendingConnect is the deferred result of ConnectAsync
type PendingConnect struct {
	done chan struct{}

	mu       sync.RWMutex
	state    OperationState
	platform models.Platform
	err      error
}

// ConnectAsync runs Connect in the background. Listeners are notified only
// after the credential exchange succeeded and the state was persisted.
func (r *Registry) ConnectAsync(ctx context.Context, id string, creds models.Credentials) *PendingConnect {
	p := &PendingConnect{
		done:  make(chan struct{}),
		state: OperationPending,
	}

	go func() {
		platform, err := r.Connect(ctx, id, creds)
		p.resolve(platform, err)
	}()

	return p
}

func (p *PendingConnect) resolve(platform models.Platform, err error) {
	p.mu.Lock()
	if err != nil {
		p.state = OperationFailed
		p.err = err
	} else {
		p.state = OperationSucceeded
		p.platform = platform
	}
	p.mu.Unlock()
	close(p.done)
}

// State reports the current operation state without blocking
func (p *PendingConnect) State() OperationState {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.state
}

// Done is closed once the operation resolved
func (p *PendingConnect) Done() <-chan struct{} {
	return p.done
}

// Result blocks until the operation resolved
func (p *PendingConnect) Result() (models.Platform, error) {
	<-p.done

	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.platform, p.err
}
