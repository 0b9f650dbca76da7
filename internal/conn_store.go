package internal

import (
	"fmt"
	"sync"
	"time"
)

type DuplicateConnectionError struct {
	Id string
}

func (e *DuplicateConnectionError) Error() string {
	return fmt.Sprintf("Attempted to register connection with duplicate id %s", e.Id)
}

type MissingConnectionError struct {
	Id string
}

func (e *MissingConnectionError) Error() string {
	return fmt.Sprintf("Missing connection with id=%s", e.Id)
}

type ConnMetadata struct {
	Mut            sync.RWMutex
	RemoteAddr     string
	ConnectedAt    time.Time
	LastActivity   time.Time
	RequestsServed int64
}

// ConnStore tracks the connections currently being served. The listener
// registers each accepted connection and handlers report activity on it;
// shutdown logging reads the live count.
type ConnStore struct {
	mut_connections sync.RWMutex
	connections     map[string]*ConnMetadata
}

func CreateConnStore() *ConnStore {
	return &ConnStore{
		mut_connections: sync.RWMutex{},
		connections:     make(map[string]*ConnMetadata),
	}
}

func (store *ConnStore) Add(connId string, remoteAddr string, now time.Time) error {
	store.mut_connections.Lock()
	defer store.mut_connections.Unlock()

	if _, has := store.connections[connId]; has {
		return &DuplicateConnectionError{Id: connId}
	}

	store.connections[connId] = &ConnMetadata{
		Mut:          sync.RWMutex{},
		RemoteAddr:   remoteAddr,
		ConnectedAt:  now,
		LastActivity: now,
	}

	return nil
}

func (store *ConnStore) Remove(connId string) {
	store.mut_connections.Lock()
	defer store.mut_connections.Unlock()
	delete(store.connections, connId)
}

func (store *ConnStore) Touch(connId string, now time.Time) error {
	store.mut_connections.RLock()
	defer store.mut_connections.RUnlock()

	connection, has := store.connections[connId]
	if !has {
		return &MissingConnectionError{Id: connId}
	}

	connection.Mut.Lock()
	defer connection.Mut.Unlock()

	connection.LastActivity = now
	connection.RequestsServed++
	return nil
}

func (store *ConnStore) RequestsServed(connId string) (int64, error) {
	store.mut_connections.RLock()
	defer store.mut_connections.RUnlock()

	connection, has := store.connections[connId]
	if !has {
		return 0, &MissingConnectionError{Id: connId}
	}

	connection.Mut.RLock()
	defer connection.Mut.RUnlock()

	return connection.RequestsServed, nil
}

func (store *ConnStore) Count() int {
	store.mut_connections.RLock()
	defer store.mut_connections.RUnlock()
	return len(store.connections)
}
