package task

import (
	"errors"
	"fmt"
)

var ErrTaskNotFound = errors.New("task not found")

// Snapshot is an in-memory, ordered copy of one project's tasks. It serves
// the edit rules as their store and the scheduler as its hierarchy view.
// A Snapshot is not safe for concurrent use.
type Snapshot struct {
	order    []string
	byID     map[string]*Task
	children map[string][]string
	updated  map[string]struct{}
}

// NewSnapshot deep-copies tasks into a new snapshot, preserving their order.
func NewSnapshot(tasks []*Task) *Snapshot {
	s := &Snapshot{
		order:   make([]string, 0, len(tasks)),
		byID:    make(map[string]*Task, len(tasks)),
		updated: make(map[string]struct{}),
	}
	for _, t := range tasks {
		if _, dup := s.byID[t.ID]; dup {
			continue
		}
		s.order = append(s.order, t.ID)
		s.byID[t.ID] = t.Clone()
	}
	s.reindex()
	return s
}

func (s *Snapshot) reindex() {
	s.children = make(map[string][]string)
	for _, id := range s.order {
		t := s.byID[id]
		if t.ParentID == "" {
			continue
		}
		if _, ok := s.byID[t.ParentID]; !ok {
			continue
		}
		s.children[t.ParentID] = append(s.children[t.ParentID], id)
	}
}

func (s *Snapshot) Len() int {
	return len(s.order)
}

// GetTaskByID returns a copy of the task.
func (s *Snapshot) GetTaskByID(id string) (*Task, bool) {
	t, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// UpdateTask applies patch to the stored task.
func (s *Snapshot) UpdateTask(id string, patch Patch) error {
	t, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("update %s: %w", id, ErrTaskNotFound)
	}
	patch.Apply(t)
	s.updated[id] = struct{}{}
	return nil
}

// Put inserts or replaces a task. Replacing keeps the task's position.
func (s *Snapshot) Put(t *Task) {
	if _, ok := s.byID[t.ID]; !ok {
		s.order = append(s.order, t.ID)
	}
	s.byID[t.ID] = t.Clone()
	s.updated[t.ID] = struct{}{}
	s.reindex()
}

// IsParent reports whether any task in the snapshot names id as its parent.
func (s *Snapshot) IsParent(id string) bool {
	return len(s.children[id]) > 0
}

// Children returns the direct children of id in snapshot order.
func (s *Snapshot) Children(id string) []string {
	return s.children[id]
}

// Descendants returns every task below id, depth first.
func (s *Snapshot) Descendants(id string) []string {
	var out []string
	seen := map[string]bool{id: true}
	var walk func(string)
	walk = func(pid string) {
		for _, c := range s.children[pid] {
			if seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
			walk(c)
		}
	}
	walk(id)
	return out
}

// IsDescendant reports whether id sits somewhere below ancestor.
func (s *Snapshot) IsDescendant(id, ancestor string) bool {
	seen := make(map[string]bool)
	for cur := id; cur != ""; {
		t, ok := s.byID[cur]
		if !ok || seen[cur] {
			return false
		}
		seen[cur] = true
		if t.ParentID == ancestor {
			return true
		}
		cur = t.ParentID
	}
	return false
}

// Depth is the number of ancestors above id. A broken parent chain stops the
// count at the first repeated task.
func (s *Snapshot) Depth(id string) int {
	depth := 0
	seen := map[string]bool{id: true}
	t, ok := s.byID[id]
	for ok && t.ParentID != "" {
		if seen[t.ParentID] {
			break
		}
		seen[t.ParentID] = true
		t, ok = s.byID[t.ParentID]
		if !ok {
			break
		}
		depth++
	}
	return depth
}

// Tasks returns copies of every task in snapshot order.
func (s *Snapshot) Tasks() []*Task {
	out := make([]*Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out
}

// Updated returns copies of the tasks changed through UpdateTask or Put.
func (s *Snapshot) Updated() []*Task {
	var out []*Task
	for _, id := range s.order {
		if _, ok := s.updated[id]; ok {
			out = append(out, s.byID[id].Clone())
		}
	}
	return out
}
