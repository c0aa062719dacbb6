package license

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/starford/hippomind/internal/storage"
)

// ProductID identifies the desktop product in cached records.
const ProductID = "hippomind"

// Record is the activation cached on the user's machine.
type Record struct {
	Key         string    `json:"key"`
	Email       string    `json:"email,omitempty"`
	ActivatedAt time.Time `json:"activatedAt"`
	Verified    bool      `json:"verified"`
	ProductID   string    `json:"productId"`
}

// Verifier is the part of Client the gate needs.
type Verifier interface {
	Verify(ctx context.Context, key string) Result
	Activate(ctx context.Context, key string) Result
}

// Gate decides whether this installation is licensed, caching the
// activated key in a JSON file.
type Gate struct {
	mu     sync.Mutex
	path   string
	client Verifier
	now    func() time.Time
}

// NewGate returns a Gate caching its record at path.
func NewGate(path string, client Verifier) *Gate {
	return &Gate{path: path, client: client, now: time.Now}
}

// Record returns the cached record, or nil when there is none or it is
// unreadable.
func (g *Gate) Record() *Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.load()
}

func (g *Gate) load() *Record {
	data, err := os.ReadFile(g.path)
	if err != nil {
		return nil
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil
	}
	return &rec
}

func (g *Gate) store(rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("license: encode record: %w", err)
	}
	return storage.WriteFile(g.path, data)
}

// IsLicensed reports whether a verified record is cached.
func (g *Gate) IsLicensed() bool {
	rec := g.Record()
	return rec != nil && rec.Verified
}

// Activate validates the key format, activates it with the server and
// caches the record. The returned error carries the user-facing message.
func (g *Gate) Activate(ctx context.Context, key string) (Record, error) {
	key = Normalize(key)
	if !ValidFormat(key) {
		return Record{}, errors.New(MsgInvalidFormat)
	}
	res := g.client.Activate(ctx, key)
	if !res.Valid {
		return Record{}, errors.New(res.Error)
	}
	rec := Record{
		Key:         key,
		Email:       res.Email,
		ActivatedAt: g.now().UTC(),
		Verified:    true,
		ProductID:   ProductID,
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.store(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Revalidate re-checks the cached key. A key the server rejects is
// cleared; an unreachable server keeps the cached state.
func (g *Gate) Revalidate(ctx context.Context) (bool, error) {
	rec := g.Record()
	if rec == nil {
		return false, nil
	}
	res := g.client.Verify(ctx, rec.Key)
	if res.Offline {
		return rec.Verified, nil
	}
	if !res.Valid {
		if err := g.Clear(); err != nil {
			return false, err
		}
		return false, errors.New(res.Error)
	}
	if res.Email != "" && res.Email != rec.Email {
		rec.Email = res.Email
		g.mu.Lock()
		defer g.mu.Unlock()
		if err := g.store(*rec); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Clear removes the cached record.
func (g *Gate) Clear() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := os.Remove(g.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("license: clear: %w", err)
	}
	return nil
}
