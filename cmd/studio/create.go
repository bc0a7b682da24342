package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"genstudio/internal/models"
	"genstudio/internal/wizard"
)

var (
	errBack    = errors.New("back")
	errRetry   = errors.New("retry")
	errAborted = errors.New("creation cancelled")
)

// prompter reads one answer per line. "<" goes back a step, "q" quits.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func (p *prompter) ask(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	line, err := p.in.ReadString('\n')
	if err != nil {
		if err != io.EOF {
			return "", err
		}
		if line == "" {
			fmt.Fprintln(p.out)
			return "", errAborted
		}
	}

	line = strings.TrimSpace(line)
	switch line {
	case "<":
		return "", errBack
	case "q":
		return "", errAborted
	}
	return line, nil
}

// choose lists options and accepts either a number or the option itself.
func (p *prompter) choose(label string, options []string) (string, error) {
	for i, o := range options {
		fmt.Fprintf(p.out, "  %d) %s\n", i+1, o)
	}
	answer, err := p.ask(label)
	if err != nil {
		return "", err
	}
	if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(options) {
		return options[n-1], nil
	}
	return answer, nil
}

// runWizard walks the flow's steps, writing each answer to store, until the
// review is confirmed.
func runWizard(flow *wizard.Flow, store *wizard.Store, p *prompter) (models.GenerationRequest, error) {
	step := wizard.StepJob
	for {
		err := askStep(flow, store, p, step)
		switch {
		case errors.Is(err, errBack):
			if prev, ok := flow.Prev(step, store.Selection()); ok {
				step = prev
			}
			continue
		case errors.Is(err, errRetry):
			continue
		case err != nil:
			return models.GenerationRequest{}, err
		}

		if err := flow.Validate(step, store.Selection()); err != nil {
			fmt.Fprintln(p.out, "!", strings.TrimPrefix(err.Error(), wizard.ErrIncomplete.Error()+": "))
			continue
		}

		if step == wizard.StepReview {
			return flow.Request(store.Selection())
		}
		step, _ = flow.Next(step, store.Selection())
	}
}

func askStep(flow *wizard.Flow, store *wizard.Store, p *prompter, step wizard.Step) error {
	catalog := flow.Catalog()
	sel := store.Selection()

	switch step {
	case wizard.StepJob:
		names := make([]string, len(catalog.Jobs))
		for i, j := range catalog.Jobs {
			names[i] = j.Name
		}
		fmt.Fprintln(p.out, "\nWhat is your business?")
		answer, err := p.choose("Job", names)
		if err != nil {
			return err
		}
		store.SetJob(answer)

	case wizard.StepFunction:
		job, ok := catalog.Job(sel.SelectedJob)
		if !ok {
			return errBack
		}
		labels := make([]string, len(job.Functions))
		for i, fn := range job.Functions {
			labels[i] = fmt.Sprintf("%s [%s]", fn.Label, fn.Category)
		}
		fmt.Fprintln(p.out, "\nWhat do you want to create?")
		answer, err := p.choose("Function", labels)
		if err != nil {
			return err
		}
		answer = strings.TrimSpace(strings.SplitN(answer, " [", 2)[0])
		if fn, ok := catalog.Function(sel.SelectedJob, answer); ok {
			store.SetFunction(fn.Label, fn.Category)
		} else {
			store.SetFunction(answer, "")
		}

	case wizard.StepQuestions:
		fn, ok := catalog.Function(sel.SelectedJob, sel.SelectedFunction)
		if !ok {
			return errBack
		}
		fmt.Fprintln(p.out, "\nA few details:")
		for _, q := range fn.Questions {
			label := q.Label
			if !q.Required {
				label += " (optional)"
			}

			var (
				answer string
				err    error
			)
			if len(q.Options) > 0 {
				answer, err = p.choose(label, q.Options)
			} else {
				answer, err = p.ask(label)
			}
			if err != nil {
				return err
			}
			if answer != "" || q.Required {
				store.SetWorkflowAnswer(q.ID, answer)
			}
		}

	case wizard.StepQuery:
		answer, err := p.ask("\nDescribe what you want")
		if err != nil {
			return err
		}
		store.SetQuery(answer)

	case wizard.StepStyle:
		fmt.Fprintln(p.out, "\nPick a style:")
		answer, err := p.choose("Style", catalog.Styles)
		if err != nil {
			return err
		}
		store.SetStyle(answer)

	case wizard.StepUpload:
		answer, err := p.ask("\nReference image path (Enter to skip)")
		if err != nil {
			return err
		}
		if answer != "" {
			if _, err := os.Stat(answer); err != nil {
				fmt.Fprintln(p.out, "! cannot read", answer)
				return errRetry
			}
		}
		store.SetUploadedImage(answer)

	case wizard.StepReview:
		printSelection(p.out, sel)
		answer, err := p.ask("Submit? [Y/n]")
		if err != nil {
			return err
		}
		if strings.EqualFold(answer, "n") {
			return errAborted
		}
	}
	return nil
}

func printSelection(out io.Writer, sel wizard.Selection) {
	fmt.Fprintln(out, "\nReview")
	fmt.Fprintf(out, "  job:       %s\n", sel.SelectedJob)
	fmt.Fprintf(out, "  function:  %s (%s)\n", sel.SelectedFunction, sel.SelectedCategory)
	for id, v := range sel.WorkflowAnswers {
		fmt.Fprintf(out, "  %s: %s\n", id, v)
	}
	fmt.Fprintf(out, "  request:   %s\n", sel.UserQuery)
	if sel.SelectedStyle != "" {
		fmt.Fprintf(out, "  style:     %s\n", sel.SelectedStyle)
	}
	if sel.UploadedImageURI != "" {
		fmt.Fprintf(out, "  reference: %s\n", sel.UploadedImageURI)
	}
}

func cmdCreate(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("create", a.out)
	watch := fs.Bool("watch", true, "wait for the result")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st := a.session.Snapshot()
	if !st.IsAuthenticated {
		return errors.New("sign in first: studio login-ai -email E -password P")
	}
	if !st.User.IsAI() {
		return errors.New("content generation needs an AI account")
	}

	flow := wizard.NewFlow(nil)
	store := wizard.NewStore()
	fmt.Fprintln(a.out, `Answer each question. Type "<" to go back, "q" to quit.`)

	req, err := runWizard(flow, store, &prompter{in: a.in, out: a.out})
	if err != nil {
		return err
	}

	job, err := a.gen.Submit(ctx, req)
	if err != nil {
		return err
	}
	store.Reset()
	a.log.WithField("job_id", job.ID).Debug("generation submitted")
	fmt.Fprintf(a.out, "\nQueued as %s\n", job.ID)

	if !*watch {
		return nil
	}
	return waitForJob(ctx, a, job.ID.String())
}
