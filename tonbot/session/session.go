// Package session owns the per-chat runtime state of the bot: the wallet
// connector, the pending connect request and the send-transaction flow.
package session

import (
	"sync"
	"sync/atomic"

	"github.com/m3rciful/tonbot/core/telegram/state"
	"github.com/m3rciful/tonbot/tonbot/flow"
	"github.com/m3rciful/tonbot/tonbot/tonconnect"
)

// ConnectorFactory builds the connector of a chat on first use.
type ConnectorFactory func(chatID int64) tonconnect.Connector

type pending struct {
	token  uint64
	cancel func()
}

// ChatSession is the runtime state of one chat.
type ChatSession struct {
	ChatID int64

	// update serializes handlers of this chat.
	update sync.Mutex

	mu           sync.Mutex
	connector    tonconnect.Connector
	onDisconnect func()
	pending      *pending
	flow         *flow.State
	flowID       string
}

// Lock is held by a handler for the whole update it processes.
func (s *ChatSession) Lock() { s.update.Lock() }

// Unlock releases Lock.
func (s *ChatSession) Unlock() { s.update.Unlock() }

// Flow returns a copy of the in-flight conversation and its id.
func (s *ChatSession) Flow() (flow.State, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flow == nil {
		return flow.State{}, "", false
	}
	return *s.flow, s.flowID, true
}

// SetFlow replaces the in-flight conversation. Terminal states clear it.
func (s *ChatSession) SetFlow(st flow.State, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.Step.Terminal() {
		s.flow, s.flowID = nil, ""
		return
	}
	s.flow, s.flowID = &st, id
}

// ClearFlow drops the in-flight conversation.
func (s *ChatSession) ClearFlow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flow, s.flowID = nil, ""
}

// takePending detaches the pending cancel so it can run without the lock.
func (s *ChatSession) takePending() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return nil
	}
	cancel := s.pending.cancel
	s.pending = nil
	return cancel
}

// Registry hands out chat sessions and their connectors.
type Registry struct {
	store   *state.Store[*ChatSession]
	factory ConnectorFactory
	tokens  atomic.Uint64
}

// NewRegistry returns a registry backed by store.
func NewRegistry(store *state.Store[*ChatSession], factory ConnectorFactory) *Registry {
	if store == nil {
		store = state.NewStore[*ChatSession]()
	}
	return &Registry{store: store, factory: factory}
}

// Store exposes the underlying chat store (sweeps, middleware).
func (r *Registry) Store() *state.Store[*ChatSession] { return r.store }

// Session returns the chat's session, creating an empty one if needed.
func (r *Registry) Session(chatID int64) *ChatSession {
	s, _ := r.store.GetOrCreate(chatID, func() *ChatSession { return &ChatSession{ChatID: chatID} })
	return s
}

// Get returns the chat's session without creating it.
func (r *Registry) Get(chatID int64) (*ChatSession, bool) {
	return r.store.Get(chatID)
}

// Connector returns the chat's connector, creating it on first access.
// onDisconnect is attached only when the connector is created; later values
// are ignored.
func (r *Registry) Connector(chatID int64, onDisconnect func()) tonconnect.Connector {
	s := r.Session(chatID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connector == nil {
		s.connector = r.factory(chatID)
		s.onDisconnect = onDisconnect
	}
	return s.connector
}

// Remove evicts the chat: the pending connect is cancelled, the connector
// paused and its disconnect callback fired.
func (r *Registry) Remove(chatID int64) bool {
	s, ok := r.store.Remove(chatID)
	if !ok {
		return false
	}
	if cancel := s.takePending(); cancel != nil {
		cancel()
	}
	s.mu.Lock()
	conn, onDisconnect := s.connector, s.onDisconnect
	s.flow, s.flowID = nil, ""
	s.mu.Unlock()
	if conn != nil {
		conn.PauseConnection()
		if c, ok := conn.(interface{ Close() }); ok {
			c.Close()
		}
	}
	if onDisconnect != nil {
		onDisconnect()
	}
	return true
}

// SetPending stores the chat's connect cancel, replacing any previous one
// without invoking it, and returns a token for ClearPendingIf.
func (r *Registry) SetPending(chatID int64, cancel func()) uint64 {
	token := r.tokens.Add(1)
	s := r.Session(chatID)
	s.mu.Lock()
	s.pending = &pending{token: token, cancel: cancel}
	s.mu.Unlock()
	return token
}

// TriggerAndClear invokes the stored cancel, if any, after removing it.
func (r *Registry) TriggerAndClear(chatID int64) {
	s, ok := r.store.Get(chatID)
	if !ok {
		return
	}
	if cancel := s.takePending(); cancel != nil {
		cancel()
	}
}

// ClearPending removes the stored cancel without invoking it.
func (r *Registry) ClearPending(chatID int64) {
	if s, ok := r.store.Get(chatID); ok {
		s.takePending()
	}
}

// ClearPendingIf removes the stored cancel only if it is still the one
// registered under token.
func (r *Registry) ClearPendingIf(chatID int64, token uint64) bool {
	s, ok := r.store.Get(chatID)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil || s.pending.token != token {
		return false
	}
	s.pending = nil
	return true
}

// HasPending reports whether a connect request is waiting in the chat.
func (r *Registry) HasPending(chatID int64) bool {
	s, ok := r.store.Get(chatID)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Len returns the number of chats with a session.
func (r *Registry) Len() int { return r.store.Len() }

// Stats is a snapshot of the registry.
type Stats struct {
	Sessions int
	Pending  int
	Flows    int
}

// Stats counts sessions, waiting connect requests and in-flight flows.
func (r *Registry) Stats() Stats {
	var st Stats
	r.store.Range(func(_ int64, s *ChatSession) bool {
		st.Sessions++
		s.mu.Lock()
		if s.pending != nil {
			st.Pending++
		}
		if s.flow != nil {
			st.Flows++
		}
		s.mu.Unlock()
		return true
	})
	return st
}
