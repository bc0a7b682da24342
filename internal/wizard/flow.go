package wizard

import (
	"errors"
	"fmt"
	"strings"

	"genstudio/internal/models"
)

// ErrIncomplete is wrapped by every validation failure.
var ErrIncomplete = errors.New("wizard: selection incomplete")

// Step is one screen of the guided flow.
type Step int

const (
	StepJob Step = iota
	StepFunction
	StepQuestions
	StepQuery
	StepStyle
	StepUpload
	StepReview
)

var stepNames = map[Step]string{
	StepJob:       "job",
	StepFunction:  "function",
	StepQuestions: "questions",
	StepQuery:     "query",
	StepStyle:     "style",
	StepUpload:    "upload",
	StepReview:    "review",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Flow sequences the steps for a selection against a catalog.
type Flow struct {
	catalog *Catalog
}

func NewFlow(catalog *Catalog) *Flow {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Flow{catalog: catalog}
}

func (f *Flow) Catalog() *Catalog {
	return f.catalog
}

// Steps returns the screens sel goes through, in order. Until a function is
// chosen the optional steps are left out.
func (f *Flow) Steps(sel Selection) []Step {
	steps := []Step{StepJob, StepFunction}

	if fn, ok := f.catalog.Function(sel.SelectedJob, sel.SelectedFunction); ok && len(fn.Questions) > 0 {
		steps = append(steps, StepQuestions)
	}
	steps = append(steps, StepQuery)

	switch sel.SelectedCategory {
	case models.CategoryImage:
		steps = append(steps, StepStyle, StepUpload)
	case models.CategorySocial:
		steps = append(steps, StepUpload)
	}

	return append(steps, StepReview)
}

// Next returns the step after current for sel, or false at the end.
func (f *Flow) Next(current Step, sel Selection) (Step, bool) {
	steps := f.Steps(sel)
	for i, s := range steps {
		if s == current && i+1 < len(steps) {
			return steps[i+1], true
		}
	}
	return current, false
}

// Prev returns the step before current for sel, or false at the start.
func (f *Flow) Prev(current Step, sel Selection) (Step, bool) {
	steps := f.Steps(sel)
	for i, s := range steps {
		if s == current && i > 0 {
			return steps[i-1], true
		}
	}
	return current, false
}

// Validate checks the fields a step writes before leaving it.
func (f *Flow) Validate(step Step, sel Selection) error {
	switch step {
	case StepJob:
		if sel.SelectedJob == "" {
			return incomplete("choose a job")
		}
		if _, ok := f.catalog.Job(sel.SelectedJob); !ok {
			return incomplete("unknown job %q", sel.SelectedJob)
		}

	case StepFunction:
		if sel.SelectedFunction == "" {
			return incomplete("choose what to create")
		}
		fn, ok := f.catalog.Function(sel.SelectedJob, sel.SelectedFunction)
		if !ok {
			return incomplete("%q is not available for %q", sel.SelectedFunction, sel.SelectedJob)
		}
		if fn.Category != sel.SelectedCategory {
			return incomplete("category %q does not match %q", sel.SelectedCategory, sel.SelectedFunction)
		}

	case StepQuestions:
		fn, ok := f.catalog.Function(sel.SelectedJob, sel.SelectedFunction)
		if !ok {
			return incomplete("choose what to create")
		}
		for _, q := range fn.Questions {
			answer := strings.TrimSpace(sel.WorkflowAnswers[q.ID])
			if answer == "" {
				if q.Required {
					return incomplete("answer %q", q.Label)
				}
				continue
			}
			if len(q.Options) > 0 && !contains(q.Options, answer) {
				return incomplete("%q is not a valid answer to %q", answer, q.Label)
			}
		}

	case StepQuery:
		if strings.TrimSpace(sel.UserQuery) == "" {
			return incomplete("describe what you want")
		}

	case StepStyle:
		if sel.SelectedCategory != models.CategoryImage {
			return nil
		}
		if sel.SelectedStyle == "" {
			return incomplete("choose a style")
		}
		if !f.catalog.HasStyle(sel.SelectedStyle) {
			return incomplete("unknown style %q", sel.SelectedStyle)
		}

	case StepUpload:
		// The reference image is optional.

	case StepReview:
		for _, s := range f.Steps(sel) {
			if s == StepReview {
				continue
			}
			if err := f.Validate(s, sel); err != nil {
				return err
			}
		}
	}
	return nil
}

// Request validates sel against the catalog and builds the request.
func (f *Flow) Request(sel Selection) (models.GenerationRequest, error) {
	if err := f.Validate(StepReview, sel); err != nil {
		return models.GenerationRequest{}, err
	}
	return BuildRequest(sel)
}

// BuildRequest turns a finished selection into a generation request. It only
// checks the fields every request needs; catalog checks belong to Flow.
func BuildRequest(sel Selection) (models.GenerationRequest, error) {
	switch {
	case sel.SelectedJob == "":
		return models.GenerationRequest{}, incomplete("no job selected")
	case sel.SelectedFunction == "":
		return models.GenerationRequest{}, incomplete("no function selected")
	case !sel.SelectedCategory.Valid():
		return models.GenerationRequest{}, incomplete("invalid category %q", sel.SelectedCategory)
	case strings.TrimSpace(sel.UserQuery) == "":
		return models.GenerationRequest{}, incomplete("empty query")
	case sel.SelectedCategory == models.CategoryImage && sel.SelectedStyle == "":
		return models.GenerationRequest{}, incomplete("image requests need a style")
	}

	req := models.GenerationRequest{
		Job:            sel.SelectedJob,
		Function:       sel.SelectedFunction,
		Category:       sel.SelectedCategory,
		Query:          strings.TrimSpace(sel.UserQuery),
		ReferenceImage: sel.UploadedImageURI,
	}
	if sel.SelectedCategory == models.CategoryImage {
		req.Style = sel.SelectedStyle
	}
	if len(sel.WorkflowAnswers) > 0 {
		req.WorkflowAnswers = make(map[string]string, len(sel.WorkflowAnswers))
		for k, v := range sel.WorkflowAnswers {
			req.WorkflowAnswers[k] = v
		}
	}
	return req, nil
}

func incomplete(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrIncomplete, fmt.Sprintf(format, args...))
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
