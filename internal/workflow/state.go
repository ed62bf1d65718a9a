package workflow

import (
	"time"
)

// AddEvent adds an event to the workflow history in a thread-safe manner
func (s *WorkflowState) AddEvent(event WorkflowEvent) {
	s.Lock()
	defer s.Unlock()
	s.History = append(s.History, event)
}

// SaveCheckpoint saves the current state as a checkpoint
func (w *Workflow) SaveCheckpoint(nodeID string, state *WorkflowState) {
	w.checkpointMutex.Lock()
	defer w.checkpointMutex.Unlock()

	if w.checkpoints == nil {
		w.checkpoints = make(map[string]*WorkflowCheckpoint)
	}

	checkpoint := &WorkflowCheckpoint{
		NodeID:    nodeID,
		State:     state,
		Timestamp: time.Now(),
	}

	// If checkpoint exists, increment retry count
	if existing, exists := w.checkpoints[nodeID]; exists {
		checkpoint.RetryCount = existing.RetryCount + 1
	}

	w.checkpoints[nodeID] = checkpoint
}

// GetCheckpoint retrieves a checkpoint for a given node
func (w *Workflow) GetCheckpoint(nodeID string) *WorkflowCheckpoint {
	w.checkpointMutex.RLock()
	defer w.checkpointMutex.RUnlock()

	if w.checkpoints == nil {
		return nil
	}

	return w.checkpoints[nodeID]
}

// ClearCheckpoint removes a checkpoint for a given node
func (w *Workflow) ClearCheckpoint(nodeID string) {
	w.checkpointMutex.Lock()
	defer w.checkpointMutex.Unlock()

	if w.checkpoints != nil {
		delete(w.checkpoints, nodeID)
	}
}
