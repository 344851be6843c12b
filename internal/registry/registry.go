// Package registry is the persistent source of truth for clean-zone
// identity: addresses registered as belonging to a known exchange, staking
// pool, merchant, or validator. The taint engine consults it exclusively —
// no heuristic inference of clean-zone membership is permitted.
package registry

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gxchain/gxcd/internal/storage"
	"github.com/gxchain/gxcd/pkg/types"
)

// prefixEntry namespaces registry records within the shared key-value store.
var prefixEntry = []byte("registry/")

// Kind identifies the category of a registered clean-zone entity.
type Kind string

const (
	KindExchange    Kind = "EXCHANGE"
	KindStakingPool Kind = "STAKING_POOL"
	KindMerchant    Kind = "MERCHANT"
	KindValidator   Kind = "VALIDATOR"
)

func (k Kind) valid() bool {
	switch k {
	case KindExchange, KindStakingPool, KindMerchant, KindValidator:
		return true
	default:
		return false
	}
}

var (
	ErrInvalidKind    = errors.New("invalid registry entry kind")
	ErrNotRegistered  = errors.New("address not registered")
	ErrAlreadyPresent = errors.New("address already registered")
)

// Entry is one registered clean-zone identity.
type Entry struct {
	Address        types.Address `json:"address"`
	Kind           Kind          `json:"kind"`
	Name           string        `json:"name"`
	Website        string        `json:"website,omitempty"`
	Verifier       string        `json:"verifier,omitempty"`
	RegisteredAt   uint64        `json:"registered_at"` // unix seconds
	LastVerifiedAt uint64        `json:"last_verified_at,omitempty"`
	Verified       bool          `json:"verified"`
}

// Registry tracks clean-zone entries, backed by a key-value store.
type Registry struct {
	mu  sync.RWMutex
	db  storage.DB
}

// New creates a Registry over the given store.
func New(db storage.DB) *Registry {
	return &Registry{db: db}
}

func entryKey(addr types.Address) []byte {
	return append(append([]byte{}, prefixEntry...), addr[:]...)
}

// Register adds a new clean-zone entry. Registering an address already
// present is rejected; use Unregister first to replace an entry.
func (r *Registry) Register(e Entry) error {
	if !e.Kind.valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, e.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	has, err := r.db.Has(entryKey(e.Address))
	if err != nil {
		return fmt.Errorf("registry has: %w", err)
	}
	if has {
		return fmt.Errorf("%w: %s", ErrAlreadyPresent, e.Address)
	}

	return r.put(e)
}

func (r *Registry) put(e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal registry entry: %w", err)
	}
	if err := r.db.Put(entryKey(e.Address), data); err != nil {
		return fmt.Errorf("put registry entry: %w", err)
	}
	return nil
}

// Unregister removes a clean-zone entry.
func (r *Registry) Unregister(addr types.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	has, err := r.db.Has(entryKey(addr))
	if err != nil {
		return fmt.Errorf("registry has: %w", err)
	}
	if !has {
		return fmt.Errorf("%w: %s", ErrNotRegistered, addr)
	}
	return r.db.Delete(entryKey(addr))
}

// MarkVerified stamps an entry as verified at the given unix timestamp.
func (r *Registry) MarkVerified(addr types.Address, at uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.get(addr)
	if err != nil {
		return err
	}
	e.Verified = true
	e.LastVerifiedAt = at
	return r.put(*e)
}

// Get returns the entry for addr, or ErrNotRegistered if absent.
func (r *Registry) Get(addr types.Address) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.get(addr)
}

func (r *Registry) get(addr types.Address) (*Entry, error) {
	data, err := r.db.Get(entryKey(addr))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, addr)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal registry entry: %w", err)
	}
	return &e, nil
}

// IsCleanZone reports whether addr is a registered clean-zone entity,
// regardless of its verification status — the taint engine stops
// propagation and emits an alert for any registered address, verified or
// not (registration alone is the source of truth; verification only
// affects trust displayed to operators).
func (r *Registry) IsCleanZone(addr types.Address) bool {
	_, err := r.Get(addr)
	return err == nil
}

// All returns every registered entry. Order is unspecified.
func (r *Registry) All() ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Entry
	err := r.db.ForEach(prefixEntry, func(key, value []byte) error {
		var e Entry
		if err := json.Unmarshal(value, &e); err != nil {
			return fmt.Errorf("unmarshal registry entry: %w", err)
		}
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Export writes every entry as a pipe-delimited line:
// address|kind|name|website|verifier|registeredAt|lastVerifiedAt|verified
func (r *Registry) Export(w io.Writer) error {
	entries, err := r.All()
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		verified := "0"
		if e.Verified {
			verified = "1"
		}
		line := strings.Join([]string{
			e.Address.Hex(),
			string(e.Kind),
			escapeField(e.Name),
			escapeField(e.Website),
			escapeField(e.Verifier),
			fmt.Sprintf("%d", e.RegisteredAt),
			fmt.Sprintf("%d", e.LastVerifiedAt),
			verified,
		}, "|")
		if _, err := fmt.Fprintln(bw, line); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Import bulk-loads entries from the line-delimited format Export writes.
// Existing entries for the same address are overwritten. Blank lines are
// skipped. Returns the number of entries imported.
func (r *Registry) Import(rd io.Reader) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	scanner := bufio.NewScanner(rd)
	count := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		// Split on unescaped '|' only; escape sequences are kept intact here
		// and decoded by unescapeField on the free-text fields.
		var fields []string
		start := 0
		for i := 0; i < len(line); i++ {
			if line[i] == '\\' {
				i++
			} else if line[i] == '|' {
				fields = append(fields, line[start:i])
				start = i + 1
			}
		}
		fields = append(fields, line[start:])
		if len(fields) != 8 {
			return count, fmt.Errorf("malformed registry import line: %q", line)
		}
		addr, err := types.HexToAddress(fields[0])
		if err != nil {
			return count, fmt.Errorf("malformed address %q: %w", fields[0], err)
		}
		kind := Kind(fields[1])
		if !kind.valid() {
			return count, fmt.Errorf("%w: %q", ErrInvalidKind, fields[1])
		}
		var registeredAt, lastVerifiedAt uint64
		if _, err := fmt.Sscanf(fields[5], "%d", &registeredAt); err != nil {
			return count, fmt.Errorf("malformed registered_at %q: %w", fields[5], err)
		}
		if _, err := fmt.Sscanf(fields[6], "%d", &lastVerifiedAt); err != nil {
			return count, fmt.Errorf("malformed last_verified_at %q: %w", fields[6], err)
		}
		e := Entry{
			Address:        addr,
			Kind:           kind,
			Name:           unescapeField(fields[2]),
			Website:        unescapeField(fields[3]),
			Verifier:       unescapeField(fields[4]),
			RegisteredAt:   registeredAt,
			LastVerifiedAt: lastVerifiedAt,
			Verified:       fields[7] == "1",
		}
		if err := r.put(e); err != nil {
			return count, err
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, err
	}
	return count, nil
}

// escapeField/unescapeField keep pipe-delimited fields unambiguous by
// escaping the separator and embedded newlines.
func escapeField(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func unescapeField(s string) string {
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if escaped {
			switch r {
			case 'n':
				b.WriteRune('\n')
			default:
				b.WriteRune(r)
			}
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
