package customer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/meheroob/stremlit-agentic-ai/internal/source"
	"golang.org/x/sync/errgroup"
)

// ErrCustomerNotFound is returned when no identity row matches the ID.
var ErrCustomerNotFound = errors.New("customer not found")

// DefaultTTL is how long loaded tables are served before a reload.
const DefaultTTL = 10 * time.Minute

// Default blob names of the three exports.
const (
	AllUsersFile  = "all-users.csv"
	PensionsFile  = "users-pensions.csv"
	InsuranceFile = "user-insurance.csv"
)

// Downloader fetches a blob's bytes.
type Downloader interface {
	Download(ctx context.Context, ref source.BlobRef) ([]byte, error)
}

// Files names the blobs holding each table.
type Files struct {
	AllUsers  string
	Pensions  string
	Insurance string
}

func (f Files) withDefaults() Files {
	if f.AllUsers == "" {
		f.AllUsers = AllUsersFile
	}
	if f.Pensions == "" {
		f.Pensions = PensionsFile
	}
	if f.Insurance == "" {
		f.Insurance = InsuranceFile
	}
	return f
}

type snapshot struct {
	users     *table
	pensions  *table
	insurance *table
	loadedAt  time.Time
}

// Directory looks customers up in the three tables, reloading them when
// they are older than the TTL.
type Directory struct {
	store  Downloader
	files  Files
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu   sync.Mutex
	snap *snapshot
}

// NewDirectory creates a Directory. Tables are loaded on first lookup.
// A ttl <= 0 uses DefaultTTL.
func NewDirectory(store Downloader, files Files, ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Directory{
		store:  store,
		files:  files.withDefaults(),
		ttl:    ttl,
		now:    time.Now,
		logger: slog.Default(),
	}
}

// Lookup returns the customer with the given ID.
func (d *Directory) Lookup(ctx context.Context, id string) (*Customer, error) {
	id = strings.TrimSpace(id)
	snap, err := d.current(ctx)
	if err != nil {
		return nil, err
	}

	ident, ok := snap.users.identity(id)
	if !ok {
		return nil, ErrCustomerNotFound
	}
	return &Customer{
		Identity:  ident,
		Pension:   snap.pensions.pension(id),
		Insurance: snap.insurance.insurance(id),
	}, nil
}

// Reload forces a reload of all three tables.
func (d *Directory) Reload(ctx context.Context) error {
	snap, err := d.load(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.snap = snap
	d.mu.Unlock()
	return nil
}

func (d *Directory) current(ctx context.Context) (*snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.snap != nil && d.now().Sub(d.snap.loadedAt) < d.ttl {
		return d.snap, nil
	}

	snap, err := d.load(ctx)
	if err != nil {
		if d.snap == nil {
			return nil, err
		}
		d.logger.Warn("customer tables reload failed, serving stale data",
			"loaded_at", d.snap.loadedAt, "error", err)
		return d.snap, nil
	}
	d.snap = snap
	return snap, nil
}

func (d *Directory) load(ctx context.Context) (*snapshot, error) {
	snap := &snapshot{}
	g, ctx := errgroup.WithContext(ctx)
	for _, f := range []struct {
		name string
		dst  **table
	}{
		{d.files.AllUsers, &snap.users},
		{d.files.Pensions, &snap.pensions},
		{d.files.Insurance, &snap.insurance},
	} {
		g.Go(func() error {
			data, err := d.store.Download(ctx, source.BlobRef{Name: f.name})
			if err != nil {
				return fmt.Errorf("downloading %s: %w", f.name, err)
			}
			t, err := parseTable(f.name, data)
			if err != nil {
				return err
			}
			*f.dst = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	snap.loadedAt = d.now()
	d.logger.Info("customer tables loaded",
		"customers", len(snap.users.rows), "pensions", len(snap.pensions.rows), "insurance", len(snap.insurance.rows))
	return snap, nil
}
