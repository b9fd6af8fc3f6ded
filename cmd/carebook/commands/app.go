package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"carebook/internal/cache"
	"carebook/internal/components/chrono"
	"carebook/internal/components/statedb"
	"carebook/internal/components/telemetry"
	"carebook/internal/pipeline"
	"carebook/internal/portal"
	"carebook/internal/render"

	"golang.org/x/term"
)

const loginAttempts = 3

// app is everything a command works with, built from the loaded config.
type app struct {
	config   Config
	time     chrono.StandardTime
	tel      telemetry.API
	state    statedb.DB
	store    cache.Store
	renderer render.Renderer
}

func openApp(cfg Config) (*app, error) {
	timeAPI, err := chrono.NewStandardTime(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	state, err := statedb.Open(cfg.StateDBPath())
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	tel := telemetry.SlogAPI{}
	return &app{
		config:   cfg,
		time:     timeAPI,
		tel:      tel,
		state:    state,
		store:    cache.New(cfg.DataDir, tel),
		renderer: render.New(render.Options{WrapWidth: cfg.WrapWidth}, tel),
	}, nil
}

func (a *app) Close() {
	err := a.state.Close()
	if err != nil {
		a.tel.ReportWarning("app.close", err)
	}
}

func (a *app) newClient() (*portal.Client, error) {
	delay, err := a.config.Delay()
	if err != nil {
		return nil, err
	}
	return portal.NewClient(portal.Options{
		BaseURL:     a.config.BaseURL,
		HandoutsURL: a.config.HandoutsURL,
		Delay:       delay,
		DumpDir:     dumpHTTP,
	}, a.time, a.tel)
}

// session returns a client with a valid session, reusing saved cookies and logging
// in interactively when they expired.
func (a *app) session(ctx context.Context) (*portal.Client, error) {
	client, err := a.newClient()
	if err != nil {
		return nil, err
	}
	err = client.LoadCookies(a.config.CookiesPath())
	if err != nil {
		return nil, err
	}
	valid, err := client.SessionValid(ctx)
	if err != nil {
		return nil, err
	}
	if !valid {
		err = a.login(ctx, client)
		if err != nil {
			return nil, err
		}
	}
	return client, client.SaveCookies(a.config.CookiesPath())
}

// login tries the saved login id first, after a failure the id is asked for again.
func (a *app) login(ctx context.Context, client *portal.Client) error {
	stdin := bufio.NewReader(os.Stdin)

	loginID := a.config.LoginID
	if loginID == "" {
		saved, ok, err := a.state.Get(ctx, pipeline.LoginIDKey)
		if err != nil {
			return err
		}
		if ok {
			loginID = saved
		}
	}

	var err error
	for attempt := 0; attempt < loginAttempts; attempt++ {
		if loginID == "" || attempt > 0 {
			loginID, err = prompt(stdin, "login: ")
			if err != nil {
				return err
			}
		}
		password := a.config.Password
		if password == "" || attempt > 0 {
			password, err = promptPassword("password: ")
			if err != nil {
				return err
			}
		}

		err = client.Login(ctx, loginID, password)
		if errors.Is(err, portal.ErrInvalidCredentials) {
			fmt.Fprintln(os.Stderr, "login failed, try again.")
			continue
		}
		if err != nil {
			return err
		}
		return a.state.Set(ctx, pipeline.LoginIDKey, loginID)
	}
	return err
}

func prompt(stdin *bufio.Reader, label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := stdin.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func promptPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("a password is needed but stdin is not a terminal, set it in the config")
	}
	fmt.Fprint(os.Stderr, label)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(password), nil
}
