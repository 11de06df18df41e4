package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/accountdesk/accountdesk/config"
	"github.com/accountdesk/accountdesk/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	In     io.Reader
	Out    io.Writer
	// open wires the services; tests replace it.
	open func(cmdCtx *commandContext) (*app, error)
}

func main() {
	logger := bootstrap.InitLogger(true)

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stderr); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}
	bootstrap.SetLogLevel(cfg.Observability.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmdCtx := &commandContext{
		Ctx:    ctx,
		Logger: logger,
		Config: cfg,
		In:     os.Stdin,
		Out:    os.Stdout,
		open:   openApp,
	}
	runErr := cmd.run(cmdCtx, os.Args[2:])
	stop()
	if runErr != nil {
		if writeErr := writef(os.Stderr, "%s: %s\n", cmdName, userMessage(runErr)); writeErr != nil {
			logger.Error("print command error failed", "error", writeErr)
		}
		logger.Debug("command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"login": {
			name:        "login",
			description: "Sign in with email and password",
			run:         runLogin,
		},
		"register": {
			name:        "register",
			description: "Create an account and its profile",
			run:         runRegister,
		},
		"logout": {
			name:        "logout",
			description: "Sign out and forget the saved session",
			run:         runLogout,
		},
		"whoami": {
			name:        "whoami",
			description: "Show the current session",
			run:         runWhoami,
		},
		"reset-password": {
			name:        "reset-password",
			description: "Send a password reset email",
			run:         runResetPassword,
		},
		"change-password": {
			name:        "change-password",
			description: "Change the signed-in user's password",
			run:         runChangePassword,
		},
		"profile": {
			name:        "profile",
			description: "Show the signed-in user's profile",
			run:         runProfile,
		},
		"profile-update": {
			name:        "profile-update",
			description: "Edit the signed-in user's name, phone or bio",
			run:         runProfileUpdate,
		},
		"avatar": {
			name:        "avatar",
			description: "Upload an avatar image or point it at a URL",
			run:         runAvatar,
		},
		"users": {
			name:        "users",
			description: "List or search user profiles (admin)",
			run:         runUsers,
		},
		"user-update": {
			name:        "user-update",
			description: "Edit another user's profile or admin flag (admin)",
			run:         runUserUpdate,
		},
		"user-delete": {
			name:        "user-delete",
			description: "Delete a user profile (admin)",
			run:         runUserDelete,
		},
		"stats": {
			name:        "stats",
			description: "Show profile counts (admin)",
			run:         runStats,
		},
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrations,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: accountdesk-cli <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(w, "  %-18s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}
