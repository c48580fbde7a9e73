package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/patric-chuzhbe/smartmark/internal/client"
	"github.com/patric-chuzhbe/smartmark/internal/logger"
	"github.com/patric-chuzhbe/smartmark/internal/viewstate"
)

// Options configures Run.
type Options struct {
	Server   string
	Token    string
	ToastTTL time.Duration
	Timeout  time.Duration
}

// SessionFromClient adapts client.Session to a SessionResolver.
func SessionFromClient(api *client.Client) SessionResolver {
	return func(ctx context.Context, token string) (*viewstate.Session, error) {
		session, err := api.Session(ctx, token)
		if err != nil {
			return nil, err
		}

		return &viewstate.Session{
			UserID: session.User.ID,
			Email:  session.User.Email,
			Token:  token,
		}, nil
	}
}

// Run starts the full-screen program and blocks until the user quits.
func Run(ctx context.Context, opts Options) error {
	api := client.New(opts.Server, client.WithTimeout(opts.Timeout))
	resolve := SessionFromClient(api)

	snapshots := newForwarder()
	synchronizer := viewstate.New(
		api,
		api,
		viewstate.WithToastTTL(opts.ToastTTL),
		viewstate.WithOnChange(snapshots.observe),
	)
	defer synchronizer.Close()

	if opts.Token != "" {
		session, err := resolve(ctx, opts.Token)
		if err != nil {
			logger.Log.Warnw("stored token was rejected, signing in again", "err", err)
		} else {
			synchronizer.SetSession(ctx, session)
		}
	}

	model := NewModel(ctx, synchronizer, resolve, opts.Server+"/auth/login")
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	snapshots.attach(p)

	forwardCtx, stopForward := context.WithCancel(ctx)
	defer stopForward()
	go snapshots.run(forwardCtx)

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("in internal/tui/program.go/Run(): error while `p.Run()` calling: %w", err)
	}

	return nil
}
