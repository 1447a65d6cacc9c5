package cli

import (
	"context"

	"github.com/roach88/storefront/internal/session"
	"github.com/roach88/storefront/internal/store"
)

// sessionOptions maps the loaded configuration onto session options.
func (o *RootOptions) sessionOptions() session.Options {
	return session.Options{
		StoreID:             o.Config.Store.StoreID,
		DefaultDeliveryDays: o.Config.Store.DefaultDeliveryDays,
		OperationTimeout:    o.Config.Store.OperationTimeout,
		LocalOrdersPath:     o.Config.Store.LocalOrdersPath,
		Logger:              o.Logger,
	}
}

// openStore opens the configured database.
func (o *RootOptions) openStore() (*store.Store, error) {
	st, err := store.Open(o.Config.Store.DatabasePath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// openSession opens the store and a loaded session for --user. The returned
// func releases both.
func (o *RootOptions) openSession(ctx context.Context) (*session.Session, func(), error) {
	if o.User == "" {
		return nil, nil, NewExitError(ExitCommandError, "--user is required")
	}

	st, err := o.openStore()
	if err != nil {
		return nil, nil, err
	}

	sess, err := session.Open(st, o.User, o.sessionOptions())
	if err != nil {
		st.Close()
		return nil, nil, WrapExitError(ExitCommandError, "failed to open session", err)
	}
	if err := sess.Load(ctx); err != nil {
		sess.Close()
		st.Close()
		return nil, nil, WrapExitError(ExitCommandError, "failed to load session", err)
	}

	release := func() {
		sess.Close()
		if err := st.Close(); err != nil {
			o.Logger.Error("error closing database", "error", err)
		}
	}
	return sess, release, nil
}
