package wizard

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"genstudio/internal/models"
)

func TestReset_RestoresInitialState(t *testing.T) {
	store := NewStore()
	initial := store.Selection()

	store.SetJob("Restaurant")
	store.SetFunction("Menu", models.CategoryDocument)
	store.SetWorkflowAnswer("q1", "v1")
	store.SetQuery("un menu d'été")
	store.SetStyle("Aquarelle")
	store.SetUploadedImage("/tmp/plat.jpg")

	store.Reset()

	if got := store.Selection(); !reflect.DeepEqual(got, initial) {
		t.Errorf("Expected %+v after reset, got %+v", initial, got)
	}
}

func TestSetters_ReplaceOwnFieldOnly(t *testing.T) {
	store := NewStore()
	store.SetJob("Restaurant")
	store.SetFunction("Affiche promotionnelle", models.CategoryImage)
	store.SetFunction("Menu", models.CategoryDocument)

	sel := store.Selection()
	if sel.SelectedJob != "Restaurant" {
		t.Errorf("Expected job kept, got %q", sel.SelectedJob)
	}
	if sel.SelectedFunction != "Menu" || sel.SelectedCategory != models.CategoryDocument {
		t.Errorf("Expected function and category replaced together, got %q/%q", sel.SelectedFunction, sel.SelectedCategory)
	}
}

func TestWorkflowAnswers_OnlyGrowUntilReset(t *testing.T) {
	store := NewStore()
	store.SetWorkflowAnswer("cuisine", "italienne")
	store.SetWorkflowAnswer("price_range", "€€")
	store.SetWorkflowAnswer("cuisine", "libanaise")

	answers := store.Selection().WorkflowAnswers
	if len(answers) != 2 || answers["cuisine"] != "libanaise" {
		t.Errorf("Unexpected answers %v", answers)
	}

	answers["cuisine"] = "mutated"
	if store.Selection().WorkflowAnswers["cuisine"] != "libanaise" {
		t.Error("Selection must return a copy of the answers")
	}
}

func TestStore_ConcurrentReaders(t *testing.T) {
	store := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			store.SetWorkflowAnswer("q", "v")
		}()
		go func() {
			defer wg.Done()
			_ = store.Selection()
		}()
	}
	wg.Wait()
}

func TestSteps_BranchByFunctionAndCategory(t *testing.T) {
	flow := NewFlow(nil)

	tests := []struct {
		name string
		sel  Selection
		want []Step
	}{
		{
			name: "nothing chosen",
			sel:  Selection{},
			want: []Step{StepJob, StepFunction, StepQuery, StepReview},
		},
		{
			name: "document with questions",
			sel:  Selection{SelectedJob: "Restaurant", SelectedFunction: "Menu", SelectedCategory: models.CategoryDocument},
			want: []Step{StepJob, StepFunction, StepQuestions, StepQuery, StepReview},
		},
		{
			name: "image",
			sel:  Selection{SelectedJob: "Restaurant", SelectedFunction: "Affiche promotionnelle", SelectedCategory: models.CategoryImage},
			want: []Step{StepJob, StepFunction, StepQuery, StepStyle, StepUpload, StepReview},
		},
		{
			name: "social",
			sel:  Selection{SelectedJob: "Restaurant", SelectedFunction: "Post Instagram", SelectedCategory: models.CategorySocial},
			want: []Step{StepJob, StepFunction, StepQuery, StepUpload, StepReview},
		},
		{
			name: "text",
			sel:  Selection{SelectedJob: "Coiffeur", SelectedFunction: "Bio du salon", SelectedCategory: models.CategoryText},
			want: []Step{StepJob, StepFunction, StepQuery, StepReview},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := flow.Steps(tc.sel); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Steps() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNextPrev(t *testing.T) {
	flow := NewFlow(nil)
	sel := Selection{SelectedJob: "Restaurant", SelectedFunction: "Post Instagram", SelectedCategory: models.CategorySocial}

	next, ok := flow.Next(StepQuery, sel)
	if !ok || next != StepUpload {
		t.Errorf("Expected upload after query for social, got %v", next)
	}
	prev, ok := flow.Prev(StepQuery, sel)
	if !ok || prev != StepFunction {
		t.Errorf("Expected function before query, got %v", prev)
	}
	if _, ok := flow.Next(StepReview, sel); ok {
		t.Error("Expected no step after review")
	}
	if _, ok := flow.Prev(StepJob, sel); ok {
		t.Error("Expected no step before job")
	}
}

func TestValidate(t *testing.T) {
	flow := NewFlow(nil)
	menu := Selection{SelectedJob: "Restaurant", SelectedFunction: "Menu", SelectedCategory: models.CategoryDocument}

	tests := []struct {
		name    string
		step    Step
		sel     Selection
		wantErr bool
	}{
		{"job missing", StepJob, Selection{}, true},
		{"unknown job", StepJob, Selection{SelectedJob: "Astronaute"}, true},
		{"job ok", StepJob, Selection{SelectedJob: "Restaurant"}, false},
		{"function from another job", StepFunction, Selection{SelectedJob: "Restaurant", SelectedFunction: "Annonce", SelectedCategory: models.CategoryText}, true},
		{"category mismatch", StepFunction, Selection{SelectedJob: "Restaurant", SelectedFunction: "Menu", SelectedCategory: models.CategoryImage}, true},
		{"function ok", StepFunction, menu, false},
		{"required answer missing", StepQuestions, menu, true},
		{"answer outside options", StepQuestions, withAnswers(menu, map[string]string{"cuisine": "thaï", "price_range": "€€€€"}), true},
		{"answers ok", StepQuestions, withAnswers(menu, map[string]string{"cuisine": "thaï", "price_range": "€€"}), false},
		{"blank query", StepQuery, Selection{UserQuery: "   "}, true},
		{"style required for image", StepStyle, Selection{SelectedCategory: models.CategoryImage}, true},
		{"unknown style", StepStyle, Selection{SelectedCategory: models.CategoryImage, SelectedStyle: "Cubisme"}, true},
		{"style ignored for text", StepStyle, Selection{SelectedCategory: models.CategoryText}, false},
		{"upload optional", StepUpload, Selection{}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := flow.Validate(tc.step, tc.sel)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate(%s) error = %v, wantErr %v", tc.step, err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, ErrIncomplete) {
				t.Errorf("Expected ErrIncomplete, got %v", err)
			}
		})
	}
}

func TestFlowRequest(t *testing.T) {
	flow := NewFlow(nil)
	sel := Selection{
		SelectedJob:      "Restaurant",
		SelectedFunction: "Affiche promotionnelle",
		SelectedCategory: models.CategoryImage,
		UserQuery:        "  soirée jazz vendredi  ",
		SelectedStyle:    "Pop art",
		UploadedImageURI: "http://cdn/ref.png",
	}

	req, err := flow.Request(sel)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	want := models.GenerationRequest{
		Job:            "Restaurant",
		Function:       "Affiche promotionnelle",
		Category:       models.CategoryImage,
		Query:          "soirée jazz vendredi",
		Style:          "Pop art",
		ReferenceImage: "http://cdn/ref.png",
	}
	if !reflect.DeepEqual(req, want) {
		t.Errorf("Request() = %+v, want %+v", req, want)
	}

	sel.SelectedStyle = ""
	if _, err := flow.Request(sel); !errors.Is(err, ErrIncomplete) {
		t.Errorf("Expected ErrIncomplete without style, got %v", err)
	}
}

func TestBuildRequest_DropsStyleOutsideImage(t *testing.T) {
	req, err := BuildRequest(Selection{
		SelectedJob:      "Restaurant",
		SelectedFunction: "Menu",
		SelectedCategory: models.CategoryDocument,
		UserQuery:        "menu",
		SelectedStyle:    "Aquarelle",
		WorkflowAnswers:  map[string]string{"cuisine": "thaï"},
	})
	if err != nil {
		t.Fatalf("BuildRequest failed: %v", err)
	}
	if req.Style != "" {
		t.Errorf("Expected no style for documents, got %q", req.Style)
	}
	if req.WorkflowAnswers["cuisine"] != "thaï" {
		t.Errorf("Expected answers copied, got %v", req.WorkflowAnswers)
	}
}

func withAnswers(sel Selection, answers map[string]string) Selection {
	sel.WorkflowAnswers = answers
	return sel
}
