package workflows

// StateMachine enforces status transitions for lifecycle entities
type StateMachine struct {
	allowedTransitions map[string][]string
}

// NewStateMachine creates a state machine from an allowed-transition table
func NewStateMachine(transitions map[string][]string) *StateMachine {
	return &StateMachine{allowedTransitions: transitions}
}

// ForPetitions returns the loan petition lifecycle machine
func ForPetitions() *StateMachine {
	return NewStateMachine(map[string][]string{
		"open":         {"fully_funded", "cancelled", "expired"},
		"fully_funded": {"converted"},
		"converted":    {},
		"cancelled":    {},
		"expired":      {},
	})
}

// ForListings returns the marketplace listing lifecycle machine
func ForListings() *StateMachine {
	return NewStateMachine(map[string][]string{
		"listed":    {"sold", "withdrawn"},
		"sold":      {},
		"withdrawn": {},
	})
}

// CanTransition checks if a status transition is allowed
func (sm *StateMachine) CanTransition(from, to string) bool {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return false
	}
	for _, allowedTo := range allowed {
		if allowedTo == to {
			return true
		}
	}
	return false
}

// GetAllowedTransitions returns the allowed next statuses for a given status
func (sm *StateMachine) GetAllowedTransitions(from string) []string {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []string{}
	}
	return allowed
}

// IsTerminal reports whether no further transitions exist from the status
func (sm *StateMachine) IsTerminal(from string) bool {
	return len(sm.GetAllowedTransitions(from)) == 0
}
