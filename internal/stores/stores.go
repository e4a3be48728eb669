package stores

import (
	"context"
	"errors"
	"io"
)

// Stores bundles every application store over one database handle.
type Stores struct {
	Invoices    *Invoices
	Merchants   *Merchants
	Scans       *Scans
	Preferences *Preferences
}

// Open creates every store. On failure the stores already created are
// closed.
func Open(cfg Config) (*Stores, error) {
	var (
		s       Stores
		err     error
		created []io.Closer
	)
	fail := func(err error) (*Stores, error) {
		for i := len(created) - 1; i >= 0; i-- {
			created[i].Close()
		}
		return nil, err
	}

	if s.Invoices, err = NewInvoices(cfg); err != nil {
		return fail(err)
	}
	created = append(created, s.Invoices)
	if s.Merchants, err = NewMerchants(cfg); err != nil {
		return fail(err)
	}
	created = append(created, s.Merchants)
	if s.Scans, err = NewScans(cfg); err != nil {
		return fail(err)
	}
	created = append(created, s.Scans)
	if s.Preferences, err = NewPreferences(cfg); err != nil {
		return fail(err)
	}
	return &s, nil
}

type lifecycle interface {
	WaitHydrated(context.Context) error
	Flush(context.Context) error
	io.Closer
}

func (s *Stores) all() []lifecycle {
	return []lifecycle{s.Invoices, s.Merchants, s.Scans, s.Preferences}
}

// WaitHydrated blocks until every store has hydrated.
func (s *Stores) WaitHydrated(ctx context.Context) error {
	for _, st := range s.all() {
		if err := st.WaitHydrated(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Flush waits until every store's pending writes are durable.
func (s *Stores) Flush(ctx context.Context) error {
	var errs []error
	for _, st := range s.all() {
		errs = append(errs, st.Flush(ctx))
	}
	return errors.Join(errs...)
}

// Close flushes and stops every store.
func (s *Stores) Close() error {
	var errs []error
	for _, st := range s.all() {
		errs = append(errs, st.Close())
	}
	return errors.Join(errs...)
}
