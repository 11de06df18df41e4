package main

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/accountdesk/accountdesk/internal/domain/model"
	"github.com/accountdesk/accountdesk/internal/ports"
)

type usersOptions struct {
	Query   string
	RawJSON bool
}

func parseUsersFlags(args []string) (usersOptions, error) {
	fs := newFlagSet("users")
	var opts usersOptions
	fs.StringVar(&opts.Query, "q", "", "Filter by name or email")
	fs.BoolVar(&opts.RawJSON, "json", false, "Print JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return usersOptions{}, err
	}
	return opts, nil
}

func runUsers(cmdCtx *commandContext, args []string) error {
	opts, err := parseUsersFlags(args)
	if err != nil {
		return err
	}
	return withApp(cmdCtx, func(ctx context.Context, a *app) error {
		list, listErr := a.Admin.ListProfiles(ctx)
		if listErr != nil {
			return listErr
		}
		if q := strings.TrimSpace(opts.Query); q != "" {
			if list, listErr = a.Admin.SearchProfiles(q); listErr != nil {
				return listErr
			}
		}
		if opts.RawJSON {
			enc := json.NewEncoder(cmdCtx.out())
			enc.SetIndent("", "  ")
			return enc.Encode(list)
		}
		return printProfiles(cmdCtx.out(), list)
	})
}

type userUpdateOptions struct {
	ID      string
	Request model.AdminUpdateProfileRequest
}

func parseUserUpdateFlags(args []string) (userUpdateOptions, error) {
	fs := newFlagSet("user-update")
	var opts userUpdateOptions
	fs.StringVar(&opts.ID, "id", "", "Profile id")
	name := fs.String("name", "", "Full name")
	phone := fs.String("phone", "", "Phone number; empty clears it")
	bio := fs.String("bio", "", "Short bio; empty clears it")
	admin := fs.String("admin", "", "Set the admin flag (true or false)")
	if err := fs.Parse(args); err != nil {
		return userUpdateOptions{}, err
	}
	if strings.TrimSpace(opts.ID) == "" {
		return userUpdateOptions{}, errors.New("--id is required")
	}

	set := visited(fs)
	if set["name"] {
		opts.Request.FullName = name
	}
	if set["phone"] {
		opts.Request.Phone = phone
	}
	if set["bio"] {
		opts.Request.Bio = bio
	}
	if set["admin"] {
		v, err := strconv.ParseBool(*admin)
		if err != nil {
			return userUpdateOptions{}, errors.New("--admin must be true or false")
		}
		opts.Request.IsAdmin = &v
	}
	delete(set, "id")
	if len(set) == 0 {
		return userUpdateOptions{}, errors.New("nothing to update: pass --name, --phone, --bio or --admin")
	}
	return opts, nil
}

func runUserUpdate(cmdCtx *commandContext, args []string) error {
	opts, err := parseUserUpdateFlags(args)
	if err != nil {
		return err
	}
	return withApp(cmdCtx, func(ctx context.Context, a *app) error {
		p, updateErr := a.Admin.UpdateProfile(ctx, opts.ID, opts.Request)
		if updateErr != nil {
			return updateErr
		}
		return printProfiles(cmdCtx.out(), []*model.Profile{p})
	})
}

type userDeleteOptions struct {
	ID  string
	Yes bool
}

func parseUserDeleteFlags(args []string) (userDeleteOptions, error) {
	fs := newFlagSet("user-delete")
	var opts userDeleteOptions
	fs.StringVar(&opts.ID, "id", "", "Profile id")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return userDeleteOptions{}, err
	}
	if strings.TrimSpace(opts.ID) == "" {
		return userDeleteOptions{}, errors.New("--id is required")
	}
	return opts, nil
}

func runUserDelete(cmdCtx *commandContext, args []string) error {
	opts, err := parseUserDeleteFlags(args)
	if err != nil {
		return err
	}
	return withApp(cmdCtx, func(ctx context.Context, a *app) error {
		confirm := newPrompter(cmdCtx).Confirm
		if opts.Yes {
			confirm = func(context.Context, string) (bool, error) { return true, nil }
		}
		if delErr := a.Admin.DeleteProfile(ctx, opts.ID, ports.ConfirmFunc(confirm)); delErr != nil {
			return delErr
		}
		return writef(cmdCtx.out(), "Deleted profile %s\n", opts.ID)
	})
}

func runStats(cmdCtx *commandContext, _ []string) error {
	return withApp(cmdCtx, func(ctx context.Context, a *app) error {
		if _, err := a.Admin.ListProfiles(ctx); err != nil {
			return err
		}
		stats, err := a.Admin.Stats()
		if err != nil {
			return err
		}
		return writef(cmdCtx.out(), "Total:   %d\nAdmins:  %d\nRegular: %d\n", stats.Total, stats.Admins, stats.Regular)
	})
}
