package main

import (
	"context"
	"errors"

	"github.com/accountdesk/accountdesk/internal/domain/model"
)

type loginOptions struct {
	Email    string
	Password string
}

func parseLoginFlags(args []string) (loginOptions, error) {
	fs := newFlagSet("login")
	var opts loginOptions
	fs.StringVar(&opts.Email, "email", "", "Account email")
	fs.StringVar(&opts.Password, "password", "", "Account password (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return loginOptions{}, err
	}
	return opts, nil
}

func runLogin(cmdCtx *commandContext, args []string) error {
	opts, err := parseLoginFlags(args)
	if err != nil {
		return err
	}
	p := newPrompter(cmdCtx)
	if opts.Email, err = p.valueOrPrompt(opts.Email, "Email: "); err != nil {
		return err
	}
	if opts.Password, err = p.valueOrPrompt(opts.Password, "Password: "); err != nil {
		return err
	}

	return withApp(cmdCtx, func(ctx context.Context, a *app) error {
		st, signInErr := a.Auth.SignIn(ctx, opts.Email, opts.Password)
		if signInErr != nil {
			return signInErr
		}
		return printState(cmdCtx.out(), st)
	})
}

type registerOptions struct {
	Name     string
	Email    string
	Password string
	Confirm  string
}

func parseRegisterFlags(args []string) (registerOptions, error) {
	fs := newFlagSet("register")
	var opts registerOptions
	fs.StringVar(&opts.Name, "name", "", "Full name")
	fs.StringVar(&opts.Email, "email", "", "Account email")
	fs.StringVar(&opts.Password, "password", "", "Password (prompted when omitted)")
	fs.StringVar(&opts.Confirm, "confirm", "", "Password confirmation (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return registerOptions{}, err
	}
	return opts, nil
}

func runRegister(cmdCtx *commandContext, args []string) error {
	opts, err := parseRegisterFlags(args)
	if err != nil {
		return err
	}
	p := newPrompter(cmdCtx)
	for _, f := range []struct {
		v *string
		q string
	}{
		{&opts.Name, "Full name: "},
		{&opts.Email, "Email: "},
		{&opts.Password, "Password: "},
		{&opts.Confirm, "Confirm password: "},
	} {
		if *f.v, err = p.valueOrPrompt(*f.v, f.q); err != nil {
			return err
		}
	}

	return withApp(cmdCtx, func(ctx context.Context, a *app) error {
		out := cmdCtx.out()
		res, signUpErr := a.Auth.SignUp(ctx, model.RegistrationInput{
			FullName:        opts.Name,
			Email:           opts.Email,
			Password:        opts.Password,
			ConfirmPassword: opts.Confirm,
		})
		if signUpErr != nil {
			if res != nil {
				// the account exists even though its profile could not be saved
				if writeErr := writef(out, "Account %s was created, but its profile was not saved.\n", res.UserID); writeErr != nil {
					return errors.Join(signUpErr, writeErr)
				}
			}
			return signUpErr
		}
		if res.ConfirmationRequired {
			return writeln(out, "Account created. Check your email to confirm it, then log in.")
		}
		if writeErr := writeln(out, "Account created."); writeErr != nil {
			return writeErr
		}
		return printState(out, res.State)
	})
}

func runLogout(cmdCtx *commandContext, _ []string) error {
	return withApp(cmdCtx, func(ctx context.Context, a *app) error {
		st, err := a.Auth.SignOut(ctx)
		if err != nil {
			// local state is cleared regardless; report the provider failure
			cmdCtx.Logger.Warn("provider sign-out failed", "error", err)
		}
		return printState(cmdCtx.out(), st)
	})
}

func runWhoami(cmdCtx *commandContext, _ []string) error {
	return withApp(cmdCtx, func(_ context.Context, a *app) error {
		return printState(cmdCtx.out(), a.Sessions.Current())
	})
}

func runResetPassword(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet("reset-password")
	email := fs.String("email", "", "Account email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr, err := newPrompter(cmdCtx).valueOrPrompt(*email, "Email: ")
	if err != nil {
		return err
	}
	return withApp(cmdCtx, func(ctx context.Context, a *app) error {
		if resetErr := a.Auth.RequestPasswordReset(ctx, addr); resetErr != nil {
			return resetErr
		}
		return writeln(cmdCtx.out(), "If the account exists, a reset email is on its way.")
	})
}

func runChangePassword(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet("change-password")
	password := fs.String("password", "", "New password (prompted when omitted)")
	confirm := fs.String("confirm", "", "New password confirmation (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p := newPrompter(cmdCtx)
	next, err := p.valueOrPrompt(*password, "New password: ")
	if err != nil {
		return err
	}
	again, err := p.valueOrPrompt(*confirm, "Confirm new password: ")
	if err != nil {
		return err
	}
	return withApp(cmdCtx, func(ctx context.Context, a *app) error {
		if changeErr := a.Auth.ChangePassword(ctx, next, again); changeErr != nil {
			return changeErr
		}
		return writeln(cmdCtx.out(), "Password updated.")
	})
}
