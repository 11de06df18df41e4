package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/accountdesk/accountdesk/internal/domain/model"
)

func runProfile(cmdCtx *commandContext, _ []string) error {
	return withApp(cmdCtx, func(ctx context.Context, a *app) error {
		p, err := a.Profiles.Current(ctx)
		if err != nil {
			return err
		}
		return printProfile(cmdCtx.out(), p, time.Now())
	})
}

type profileUpdateOptions struct {
	Request model.UpdateProfileRequest
}

func parseProfileUpdateFlags(args []string) (profileUpdateOptions, error) {
	fs := newFlagSet("profile-update")
	name := fs.String("name", "", "Full name")
	phone := fs.String("phone", "", "Phone number; empty clears it")
	bio := fs.String("bio", "", "Short bio; empty clears it")
	if err := fs.Parse(args); err != nil {
		return profileUpdateOptions{}, err
	}

	var opts profileUpdateOptions
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
	if len(set) == 0 {
		return profileUpdateOptions{}, errors.New("nothing to update: pass --name, --phone or --bio")
	}
	return opts, nil
}

func runProfileUpdate(cmdCtx *commandContext, args []string) error {
	opts, err := parseProfileUpdateFlags(args)
	if err != nil {
		return err
	}
	return withApp(cmdCtx, func(ctx context.Context, a *app) error {
		p, updateErr := a.Profiles.UpdateProfile(ctx, a.Sessions.Current().UserID(), opts.Request)
		if updateErr != nil {
			return updateErr
		}
		return printProfile(cmdCtx.out(), p, time.Now())
	})
}

type avatarOptions struct {
	File string
	URL  string
}

func parseAvatarFlags(args []string) (avatarOptions, error) {
	fs := newFlagSet("avatar")
	var opts avatarOptions
	fs.StringVar(&opts.File, "file", "", "Image file to upload")
	fs.StringVar(&opts.URL, "url", "", "Existing image URL to use instead of uploading")
	if err := fs.Parse(args); err != nil {
		return avatarOptions{}, err
	}
	if (opts.File == "") == (opts.URL == "") {
		return avatarOptions{}, errors.New("pass exactly one of --file or --url")
	}
	return opts, nil
}

func runAvatar(cmdCtx *commandContext, args []string) error {
	opts, err := parseAvatarFlags(args)
	if err != nil {
		return err
	}
	var data []byte
	if opts.File != "" {
		if data, err = os.ReadFile(opts.File); err != nil {
			return err
		}
	}
	return withApp(cmdCtx, func(ctx context.Context, a *app) error {
		var (
			p      *model.Profile
			setErr error
		)
		if opts.URL != "" {
			p, setErr = a.Profiles.SetAvatarURL(ctx, opts.URL)
		} else {
			p, setErr = a.Profiles.SetAvatar(ctx, http.DetectContentType(data), data)
		}
		if setErr != nil {
			return setErr
		}
		return printProfile(cmdCtx.out(), p, time.Now())
	})
}
