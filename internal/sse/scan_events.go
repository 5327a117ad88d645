package sse

import (
	"context"
	"sync"

	"ms-checkin/internal/models"
)

// ScanEventEmitter fans processed scans out to connected dashboards.
type ScanEventEmitter struct {
	clients     map[chan models.ScanEvent]struct{}
	clientMutex sync.RWMutex
}

func NewScanEventEmitter() *ScanEventEmitter {
	return &ScanEventEmitter{
		clients: make(map[chan models.ScanEvent]struct{}),
	}
}

// Subscribe registers a client until ctx is done, after which the channel is closed.
func (e *ScanEventEmitter) Subscribe(ctx context.Context) chan models.ScanEvent {
	clientChan := make(chan models.ScanEvent, 10)

	e.clientMutex.Lock()
	e.clients[clientChan] = struct{}{}
	e.clientMutex.Unlock()

	go func() {
		<-ctx.Done()
		e.removeClient(clientChan)
	}()

	return clientChan
}

// Emit broadcasts event to every subscriber without blocking; slow clients miss events.
func (e *ScanEventEmitter) Emit(event models.ScanEvent) {
	e.clientMutex.RLock()
	defer e.clientMutex.RUnlock()

	for clientChan := range e.clients {
		select {
		case clientChan <- event:
		default:
			// Channel buffer full, skip this client
		}
	}
}

func (e *ScanEventEmitter) PublishScanEvent(_ context.Context, event models.ScanEvent) error {
	e.Emit(event)
	return nil
}

func (e *ScanEventEmitter) removeClient(clientChan chan models.ScanEvent) {
	e.clientMutex.Lock()
	defer e.clientMutex.Unlock()

	if _, ok := e.clients[clientChan]; ok {
		delete(e.clients, clientChan)
		close(clientChan)
	}
}

// ClientCount returns the number of connected subscribers
func (e *ScanEventEmitter) ClientCount() int {
	e.clientMutex.RLock()
	defer e.clientMutex.RUnlock()
	return len(e.clients)
}
