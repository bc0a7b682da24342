package main

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"genstudio/internal/models"
	"genstudio/internal/wizard"
)

func runScripted(input string) (models.GenerationRequest, string, error) {
	var out bytes.Buffer
	p := &prompter{in: bufio.NewReader(strings.NewReader(input)), out: &out}
	req, err := runWizard(wizard.NewFlow(nil), wizard.NewStore(), p)
	return req, out.String(), err
}

func TestRunWizard(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    models.GenerationRequest
		wantOut string
	}{
		{
			name:  "image with style",
			input: "1\n2\nsoirée jazz\n4\n\ny\n",
			want: models.GenerationRequest{
				Job: "Restaurant", Function: "Affiche promotionnelle", Category: models.CategoryImage,
				Query: "soirée jazz", Style: "Aquarelle",
			},
		},
		{
			name:  "workflow questions",
			input: "1\n1\nbistronomique\n2\nmenu du midi\n\n",
			want: models.GenerationRequest{
				Job: "Restaurant", Function: "Menu", Category: models.CategoryDocument,
				Query:           "menu du midi",
				WorkflowAnswers: map[string]string{"cuisine": "bistronomique", "price_range": "€€"},
			},
		},
		{
			name:  "back to job",
			input: "1\n<\n3\n1\n2\n120\n\nlumineuse\ny\n",
			want: models.GenerationRequest{
				Job: "Immobilier", Function: "Annonce", Category: models.CategoryText,
				Query:           "lumineuse",
				WorkflowAnswers: map[string]string{"property_type": "Maison", "surface": "120"},
			},
		},
		{
			name:    "invalid answer is asked again",
			input:   "9\nRestaurant\nDescription\nnotre histoire\ny\n",
			want:    models.GenerationRequest{Job: "Restaurant", Function: "Description", Category: models.CategoryText, Query: "notre histoire"},
			wantOut: `unknown job "9"`,
		},
		{
			name:    "empty query is asked again",
			input:   "4\n1\n   \nun slogan\ny\n",
			want:    models.GenerationRequest{Job: "Autre", Function: "Texte libre", Category: models.CategoryText, Query: "un slogan"},
			wantOut: "describe what you want",
		},
		{
			name:    "missing reference file is asked again",
			input:   "4\n4\nrentrée\n/does/not/exist.png\n\ny\n",
			want:    models.GenerationRequest{Job: "Autre", Function: "Post réseaux sociaux", Category: models.CategorySocial, Query: "rentrée"},
			wantOut: "cannot read /does/not/exist.png",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, out, err := runScripted(tt.input)
			if err != nil {
				t.Fatalf("Expected no error, got %v\n%s", err, out)
			}
			if got.Job != tt.want.Job || got.Function != tt.want.Function || got.Category != tt.want.Category ||
				got.Query != tt.want.Query || got.Style != tt.want.Style || got.ReferenceImage != tt.want.ReferenceImage {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
			if len(got.WorkflowAnswers) != len(tt.want.WorkflowAnswers) {
				t.Errorf("Expected answers %v, got %v", tt.want.WorkflowAnswers, got.WorkflowAnswers)
			}
			for k, v := range tt.want.WorkflowAnswers {
				if got.WorkflowAnswers[k] != v {
					t.Errorf("Expected answer %s=%q, got %q", k, v, got.WorkflowAnswers[k])
				}
			}
			if tt.wantOut != "" && !strings.Contains(out, tt.wantOut) {
				t.Errorf("Expected output to contain %q, got:\n%s", tt.wantOut, out)
			}
		})
	}
}

func TestRunWizard_Aborts(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"quit", "1\nq\n"},
		{"end of input", "1\n"},
		{"declined review", "1\n4\nnotre histoire\nn\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runScripted(tt.input)
			if !errors.Is(err, errAborted) {
				t.Errorf("Expected errAborted, got %v", err)
			}
		})
	}
}

func TestErrorText(t *testing.T) {
	if got := errorText(errors.New("-email is required")); got != "-email is required" {
		t.Errorf("Expected local error text, got %q", got)
	}
}
