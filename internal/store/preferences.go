package store

import (
	"context"
	"errors"
	"log"
	"strconv"
	"sync"

	"gorm.io/gorm"
)

const (
	keyHelpSeen       = "help_seen"
	keySelectedMotion = "selected_motion"
)

// Preferences persists per-session client state: whether the voter help
// overlay was dismissed and which motion the moderator last selected.
// Every value is mirrored in memory, so when the database is unavailable
// reads fall back to what this process wrote and writes still succeed.
type Preferences struct {
	store Store

	mu  sync.Mutex
	mem map[string]string
}

// NewPreferences wraps s. A nil store keeps everything in memory.
func NewPreferences(s Store) *Preferences {
	return &Preferences{store: s, mem: make(map[string]string)}
}

func memKey(sessionID, key string) string {
	return sessionID + "/" + key
}

func (p *Preferences) get(ctx context.Context, sessionID, key string) (string, bool) {
	if p.store != nil {
		v, err := p.store.GetPreference(ctx, sessionID, key)
		if err == nil {
			return v, true
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("preferences: %v; using in-memory value", err)
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.mem[memKey(sessionID, key)]
	return v, ok
}

func (p *Preferences) put(ctx context.Context, sessionID, key, value string) {
	p.mu.Lock()
	p.mem[memKey(sessionID, key)] = value
	p.mu.Unlock()

	if p.store == nil {
		return
	}
	if err := p.store.PutPreference(ctx, sessionID, key, value); err != nil {
		log.Printf("preferences: %v; keeping value in memory", err)
	}
}

// HelpSeen reports whether the help overlay was dismissed for a session.
func (p *Preferences) HelpSeen(ctx context.Context, sessionID string) bool {
	v, ok := p.get(ctx, sessionID, keyHelpSeen)
	return ok && v == "1"
}

// MarkHelpSeen records that the help overlay was dismissed.
func (p *Preferences) MarkHelpSeen(ctx context.Context, sessionID string) {
	p.put(ctx, sessionID, keyHelpSeen, "1")
}

// SelectedMotion returns the last motion the moderator selected.
func (p *Preferences) SelectedMotion(ctx context.Context, sessionID string) (int64, bool) {
	v, ok := p.get(ctx, sessionID, keySelectedMotion)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// SetSelectedMotion stores the moderator's selection.
func (p *Preferences) SetSelectedMotion(ctx context.Context, sessionID string, motionID int64) {
	p.put(ctx, sessionID, keySelectedMotion, strconv.FormatInt(motionID, 10))
}
