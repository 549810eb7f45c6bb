package telegram

import "sync"

// ChatState is where a chat is in a multi-step dialog
type ChatState struct {
	State string
	Data  map[string]string
}

// StateManager keeps dialog state per chat
type StateManager struct {
	mu     sync.RWMutex
	states map[int64]*ChatState
}

// NewStateManager creates a new state manager
func NewStateManager() *StateManager {
	return &StateManager{
		states: make(map[int64]*ChatState),
	}
}

// Set replaces a chat's state. data is copied.
func (sm *StateManager) Set(chatID int64, state string, data map[string]string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	copied := make(map[string]string, len(data))
	for k, v := range data {
		copied[k] = v
	}
	sm.states[chatID] = &ChatState{
		State: state,
		Data:  copied,
	}
}

// Get returns a copy of the chat's state, or nil
func (sm *StateManager) Get(chatID int64) *ChatState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	st, ok := sm.states[chatID]
	if !ok {
		return nil
	}
	data := make(map[string]string, len(st.Data))
	for k, v := range st.Data {
		data[k] = v
	}
	return &ChatState{State: st.State, Data: data}
}

// Clear removes a chat's state
func (sm *StateManager) Clear(chatID int64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.states, chatID)
}

// State constants
const (
	StateWaitName    = "wait_name"
	StateWaitAddress = "wait_address"
	StateWaitType    = "wait_type"
	StateWaitRename  = "wait_rename"
	StateWaitIcon    = "wait_icon"
)
