// Package wizard holds the in-progress selection of the guided creation
// flow and turns a finished selection into a generation request.
package wizard

import (
	"sync"

	"genstudio/internal/models"
)

// Selection is what the user has picked so far. Empty strings mean "not
// chosen yet".
type Selection struct {
	SelectedJob      string
	SelectedFunction string
	SelectedCategory models.Category
	UserQuery        string
	SelectedStyle    string
	UploadedImageURI string
	WorkflowAnswers  map[string]string
}

// Store is written by one step at a time. Setters never validate.
type Store struct {
	mu  sync.RWMutex
	sel Selection
}

func NewStore() *Store {
	return &Store{}
}

// Selection returns a copy of the current selection.
func (s *Store) Selection() Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.sel
	if s.sel.WorkflowAnswers != nil {
		out.WorkflowAnswers = make(map[string]string, len(s.sel.WorkflowAnswers))
		for k, v := range s.sel.WorkflowAnswers {
			out.WorkflowAnswers[k] = v
		}
	}
	return out
}

func (s *Store) SetJob(job string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sel.SelectedJob = job
}

// SetFunction sets the function and the category it belongs to. Category
// has no setter of its own.
func (s *Store) SetFunction(label string, category models.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sel.SelectedFunction = label
	s.sel.SelectedCategory = category
}

func (s *Store) SetWorkflowAnswer(questionID, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sel.WorkflowAnswers == nil {
		s.sel.WorkflowAnswers = make(map[string]string)
	}
	s.sel.WorkflowAnswers[questionID] = value
}

func (s *Store) SetQuery(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sel.UserQuery = text
}

func (s *Store) SetStyle(style string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sel.SelectedStyle = style
}

func (s *Store) SetUploadedImage(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sel.UploadedImageURI = uri
}

// Reset returns the store to its initial state. It is the only way to drop
// workflow answers.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sel = Selection{}
}
