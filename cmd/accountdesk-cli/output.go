package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	domainauth "github.com/accountdesk/accountdesk/internal/domain/auth"
	"github.com/accountdesk/accountdesk/internal/domain/model"
	apperrors "github.com/accountdesk/accountdesk/internal/errors"
	"github.com/accountdesk/accountdesk/internal/ports"
)

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func write(w io.Writer, args ...any) error {
	_, err := fmt.Fprint(w, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	if len(args) == 0 {
		_, err := fmt.Fprintln(w)
		return err
	}
	_, err := fmt.Fprintln(w, args...)
	return err
}

// userMessage prefers the display message of application errors and falls
// back to the raw text for flag and connection errors.
func userMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return apperrors.UserMessage(err)
	}
	return err.Error()
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

// visited reports which flags were set explicitly.
func visited(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// prompter reads answers line by line from the command's input.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(cmdCtx *commandContext) *prompter {
	in := cmdCtx.In
	if in == nil {
		in = os.Stdin
	}
	return &prompter{in: bufio.NewReader(in), out: cmdCtx.out()}
}

func (p *prompter) ask(question string) (string, error) {
	if err := write(p.out, question); err != nil {
		return "", fmt.Errorf("print prompt: %w", err)
	}
	resp, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && resp != "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(resp), nil
}

// Confirm implements ports.Confirmer with a [y/N] prompt.
func (p *prompter) Confirm(_ context.Context, prompt string) (bool, error) {
	resp, err := p.ask(prompt + " [y/N]: ")
	if err != nil {
		return false, err
	}
	resp = strings.ToLower(resp)
	return resp == "y" || resp == "yes", nil
}

var _ ports.Confirmer = (*prompter)(nil)

// valueOrPrompt returns v, or asks for it when empty.
func (p *prompter) valueOrPrompt(v, question string) (string, error) {
	if v != "" {
		return v, nil
	}
	return p.ask(question)
}

func (c *commandContext) out() io.Writer {
	if c.Out != nil {
		return c.Out
	}
	return os.Stdout
}

func printState(w io.Writer, st domainauth.State) error {
	switch {
	case st.Initializing():
		return writeln(w, "Session is still initializing")
	case !st.Authenticated():
		return writeln(w, "Not signed in")
	}
	role := st.Role()
	if !st.RoleResolved {
		role = "unresolved"
	}
	if err := writef(w, "Signed in as %s (%s)\n", st.Identity.Email, role); err != nil {
		return err
	}
	if err := writef(w, "User ID:  %s\n", st.UserID()); err != nil {
		return err
	}
	if !st.Identity.ExpiresAt.IsZero() {
		return writef(w, "Expires:  %s\n", st.Identity.ExpiresAt.Local().Format(time.RFC1123))
	}
	return nil
}

func printProfile(w io.Writer, p *model.Profile, now time.Time) error {
	if p == nil {
		return writeln(w, "No profile found for this account")
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	rows := [][2]string{
		{"Name", p.DisplayName()},
		{"Email", p.Email},
		{"Phone", orDash(p.Phone)},
		{"Bio", orDash(p.Bio)},
		{"Avatar", orDash(shortAvatar(p.AvatarURL))},
		{"Role", roleLabel(p.IsAdmin)},
		{"Member for", fmt.Sprintf("%d days", p.DaysSinceJoined(now))},
		{"Complete", fmt.Sprintf("%d%%", p.Completeness())},
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(tw, "%s:\t%s\n", r[0], r[1]); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printProfiles(w io.Writer, list []*model.Profile) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tROLE\tJOINED"); err != nil {
		return err
	}
	for _, p := range list {
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.DisplayName(), p.Email, roleLabel(p.IsAdmin), p.CreatedAt.Format("2006-01-02")); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return writef(w, "%d profile(s)\n", len(list))
}

func roleLabel(isAdmin bool) string {
	if isAdmin {
		return string(domainauth.RoleAdmin)
	}
	return string(domainauth.RoleUser)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// shortAvatar keeps inline data URLs from flooding the terminal.
func shortAvatar(ref string) string {
	if strings.HasPrefix(ref, "data:") {
		if i := strings.IndexByte(ref, ';'); i > 0 {
			return ref[:i] + ";base64,..."
		}
	}
	return ref
}
