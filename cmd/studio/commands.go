package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"genstudio/internal/generation"
	"genstudio/internal/models"
)

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func required(fs *flag.FlagSet, names ...string) error {
	for _, name := range names {
		if strings.TrimSpace(fs.Lookup(name).Value.String()) == "" {
			return fmt.Errorf("-%s is required", name)
		}
	}
	return nil
}

func cmdRegisterAI(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("register-ai", a.out)
	var req models.RegisterRequest
	fs.StringVar(&req.Email, "email", "", "email address")
	fs.StringVar(&req.Password, "password", "", "password")
	fs.StringVar(&req.FirstName, "first-name", "", "first name")
	fs.StringVar(&req.LastName, "last-name", "", "last name")
	fs.StringVar(&req.Phone, "phone", "", "phone number")
	fs.StringVar(&req.CompanyName, "company", "", "company name")
	fs.StringVar(&req.Activity, "activity", "", "company activity")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "email", "password", "first-name", "company"); err != nil {
		return err
	}

	if _, err := a.session.RegisterAI(ctx, req); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Account created. Check %s for your verification code, then run: studio verify -email %s -code <code>\n", req.Email, req.Email)
	return nil
}

func cmdVerify(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("verify", a.out)
	email := fs.String("email", "", "email address")
	code := fs.String("code", "", "verification code")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "email", "code"); err != nil {
		return err
	}

	user, err := a.session.VerifyEmail(ctx, *email, *code)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Email verified. Welcome, %s.\n", user.FirstName)
	return nil
}

func cmdResendOTP(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("resend-otp", a.out)
	email := fs.String("email", "", "email address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "email"); err != nil {
		return err
	}

	if err := a.session.ResendOTP(ctx, *email); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "A new code is on its way.")
	return nil
}

func cmdLogin(ctx context.Context, a *app, args []string) error {
	return login(ctx, a, "login", args, a.session.Login)
}

func cmdLoginAI(ctx context.Context, a *app, args []string) error {
	return login(ctx, a, "login-ai", args, a.session.LoginAI)
}

func login(ctx context.Context, a *app, name string, args []string, fn func(context.Context, string, string) (*models.UserProfile, error)) error {
	fs := newFlagSet(name, a.out)
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "email", "password"); err != nil {
		return err
	}

	user, err := fn(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Signed in as %s.\n", user.Email)
	if !a.session.Snapshot().HasFinishedOnboarding {
		fmt.Fprintln(a.out, "Finish setting up your account, then run: studio onboarded")
	}
	return nil
}

func cmdLogout(ctx context.Context, a *app, args []string) error {
	a.session.Logout(ctx)
	fmt.Fprintln(a.out, "Signed out.")
	return nil
}

func cmdWhoami(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("whoami", a.out)
	refresh := fs.Bool("refresh", false, "fetch the profile from the server first")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st := a.session.Snapshot()
	if !st.IsAuthenticated {
		fmt.Fprintln(a.out, "Not signed in.")
		return nil
	}

	user := st.User
	if *refresh {
		var err error
		if user, err = a.session.FetchProfile(ctx); err != nil {
			return err
		}
	}
	printProfile(a.out, user, a.session.Snapshot().HasFinishedOnboarding)
	return nil
}

func printProfile(out io.Writer, u *models.UserProfile, onboarded bool) {
	fmt.Fprintf(out, "%s %s <%s>\n", u.FirstName, u.LastName, u.Email)
	fmt.Fprintf(out, "  account:    %s\n", u.Type)
	if u.Phone != "" {
		fmt.Fprintf(out, "  phone:      %s\n", u.Phone)
	}
	if u.AvatarURL != "" {
		fmt.Fprintf(out, "  avatar:     %s\n", u.AvatarURL)
	}
	fmt.Fprintf(out, "  onboarded:  %t\n", onboarded)

	if p := u.AIProfile; p != nil {
		fmt.Fprintf(out, "  company:    %s", p.CompanyName)
		if p.Activity != "" {
			fmt.Fprintf(out, " (%s)", p.Activity)
		}
		fmt.Fprintln(out)
		if p.LogoURL != "" {
			fmt.Fprintf(out, "  logo:       %s\n", p.LogoURL)
		}
		if p.Usage != nil {
			fmt.Fprintf(out, "  plan:       %s, %d/%d generations\n", p.Plan, p.Usage.GenerationsUsed, p.Usage.GenerationsLimit)
		}
	}
}

func cmdProfile(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("profile", a.out)
	firstName := fs.String("first-name", "", "first name")
	lastName := fs.String("last-name", "", "last name")
	phone := fs.String("phone", "", "phone number")
	company := fs.String("company", "", "company name")
	activity := fs.String("activity", "", "company activity")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user := map[string]interface{}{}
	ai := map[string]interface{}{}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "first-name":
			user["firstName"] = *firstName
		case "last-name":
			user["lastName"] = *lastName
		case "phone":
			user["phone"] = *phone
		case "company":
			ai["companyName"] = *company
		case "activity":
			ai["activity"] = *activity
		}
	})
	if len(user) == 0 && len(ai) == 0 {
		return errors.New("nothing to update")
	}

	var (
		updated *models.UserProfile
		err     error
	)
	if len(user) > 0 {
		if updated, err = a.session.UpdateProfile(ctx, user); err != nil {
			return err
		}
	}
	if len(ai) > 0 {
		if updated, err = a.session.UpdateAIProfile(ctx, ai); err != nil {
			return err
		}
	}
	printProfile(a.out, updated, a.session.Snapshot().HasFinishedOnboarding)
	return nil
}

func cmdAvatar(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: studio avatar FILE")
	}
	url, err := a.session.UploadAvatar(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Avatar updated:", url)
	return nil
}

func cmdLogo(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: studio logo FILE")
	}
	user := a.session.Snapshot().User
	if !user.IsAI() || user.AIProfile == nil {
		return errors.New("this account has no company profile")
	}

	url, err := a.session.UploadLogo(ctx, user.AIProfile.ID, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logo updated:", url)
	return nil
}

func cmdPassword(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("password", a.out)
	oldPassword := fs.String("old", "", "current password")
	newPassword := fs.String("new", "", "new password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "old", "new"); err != nil {
		return err
	}

	if err := a.session.ChangePassword(ctx, *oldPassword, *newPassword); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Password changed.")
	return nil
}

func cmdOnboarded(ctx context.Context, a *app, args []string) error {
	a.session.FinishOnboarding(ctx)
	fmt.Fprintln(a.out, "Onboarding complete.")
	return nil
}

func cmdPlans(ctx context.Context, a *app, args []string) error {
	plans, err := a.gen.Plans(ctx)
	if err != nil {
		return err
	}
	for _, p := range plans {
		fmt.Fprintf(a.out, "%-10s %-12s %6.2f %s  %d generations/month\n",
			p.ID, p.Name, float64(p.PriceCents)/100, p.Currency, p.GenerationsLimit)
	}
	return nil
}

func cmdJobs(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("jobs", a.out)
	id := fs.String("id", "", "show a single job")
	watch := fs.Bool("watch", false, "with -id, wait for the job to finish")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *id == "" {
		jobs, err := a.gen.List(ctx)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Fprintln(a.out, "No generations yet.")
		}
		for _, j := range jobs {
			fmt.Fprintf(a.out, "%s  %-10s  %s  %s / %s\n",
				j.ID, j.Status, j.CreatedAt.Local().Format(time.DateTime), j.Request.Job, j.Request.Function)
		}
		return nil
	}

	if *watch {
		return waitForJob(ctx, a, *id)
	}
	job, err := a.gen.Get(ctx, *id)
	if err != nil {
		return err
	}
	printJob(a.out, job)
	return nil
}

func waitForJob(ctx context.Context, a *app, id string) error {
	job, err := a.gen.Wait(ctx, id, 3*time.Second, func(ev generation.Event) {
		if ev.Type == models.EventStatusUpdate {
			fmt.Fprintf(a.out, "  [%d/3] %s\n", ev.Step, ev.StepName)
		}
	})
	if job != nil {
		printJob(a.out, job)
	}
	return err
}

func printJob(out io.Writer, j *models.Job) {
	fmt.Fprintf(out, "Job %s: %s\n", j.ID, j.Status)
	fmt.Fprintf(out, "  %s / %s (%s)\n", j.Request.Job, j.Request.Function, j.Request.Category)
	if j.Result != "" {
		fmt.Fprintf(out, "\n%s\n", j.Result)
	}
	if j.ImageURL != "" {
		fmt.Fprintf(out, "\nImage: %s\n", j.ImageURL)
	}
	if j.ErrorMessage != nil {
		fmt.Fprintf(out, "  error: %s\n", *j.ErrorMessage)
	}
}
