package studio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/maauso/promptstudio/internal/generator"
	"github.com/maauso/promptstudio/internal/kvstore"
)

// Key names a persisted entry.
type Key string

// Persisted entries.
const (
	KeyModePrompts    Key = "mode_prompts"
	KeyModeImages     Key = "mode_images"
	KeyLanePrompts    Key = "lane_prompts"
	KeyCredential     Key = "user_api_key"
	KeyReferenceImage Key = "ref_image"
	KeySettings       Key = "settings"
	KeyScripts        Key = "scripts"
)

// Keys lists every persisted entry.
var Keys = []Key{KeyModePrompts, KeyModeImages, KeyLanePrompts, KeyCredential, KeyReferenceImage, KeySettings, KeyScripts}

// Store owns the studio state and writes changes through to a kvstore.Store.
type Store struct {
	mu     sync.RWMutex
	state  State
	kv     kvstore.Store
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore creates a store holding the default state.
func NewStore(kv kvstore.Store, opts ...Option) *Store {
	s := &Store{state: DefaultState(), kv: kv, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load creates a store from the persisted entries. Missing entries keep
// their defaults; entries that cannot be decoded are logged and skipped.
// Only a failing backend is reported as an error.
func Load(ctx context.Context, kv kvstore.Store, opts ...Option) (*Store, error) {
	s := NewStore(kv, opts...)
	st := DefaultState()

	for _, key := range Keys {
		err := s.loadKey(ctx, &st, key)
		switch {
		case err == nil, errors.Is(err, kvstore.ErrNotFound):
		case errors.Is(err, errCorrupt):
			s.logger.Warn("ignoring corrupt studio entry",
				slog.String("key", string(key)),
				slog.String("error", err.Error()),
			)
		default:
			return nil, fmt.Errorf("studio: load %s: %w", key, err)
		}
	}

	s.state = st
	return s, nil
}

var errCorrupt = errors.New("studio: corrupt entry")

func (s *Store) loadKey(ctx context.Context, st *State, key Key) error {
	data, err := s.kv.Get(ctx, string(key))
	if err != nil {
		return err
	}

	// Decode into a scratch copy so a half-decoded value never leaks into st.
	next := st.Clone()
	if err := decodeKey(&next, key, data); err != nil {
		return fmt.Errorf("%w: %w", errCorrupt, err)
	}
	*st = next
	return nil
}

// Dispatch applies the action to a copy of the state, persists the entries
// it touched and then publishes the new state. Nothing changes on error.
func (s *Store) Dispatch(ctx context.Context, a Action) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.Clone()
	keys, err := a.apply(&next)
	if err != nil {
		return s.state.Clone(), err
	}

	for _, key := range keys {
		if err := s.persist(ctx, next, key); err != nil {
			return s.state.Clone(), fmt.Errorf("studio: persist %s: %w", key, err)
		}
	}

	s.state = next
	return next.Clone(), nil
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

func (s *Store) persist(ctx context.Context, st State, key Key) error {
	switch key {
	case KeyCredential:
		if st.Credential == "" {
			return s.kv.Delete(ctx, string(key))
		}
		return kvstore.SetJSON(ctx, s.kv, string(key), st.Credential)
	case KeyReferenceImage:
		if st.ReferenceImage == "" {
			return s.kv.Delete(ctx, string(key))
		}
		return kvstore.SetJSON(ctx, s.kv, string(key), st.ReferenceImage)
	case KeyModePrompts:
		return kvstore.SetJSON(ctx, s.kv, string(key), st.promptTexts())
	case KeyModeImages:
		return kvstore.SetJSON(ctx, s.kv, string(key), st.imageLists())
	case KeyLanePrompts:
		return kvstore.SetJSON(ctx, s.kv, string(key), st.Lanes)
	case KeySettings:
		return kvstore.SetJSON(ctx, s.kv, string(key), st.Settings)
	case KeyScripts:
		return kvstore.SetJSON(ctx, s.kv, string(key), st.Scripts)
	}
	return fmt.Errorf("unknown key %q", key)
}

func decodeKey(st *State, key Key, data []byte) error {
	switch key {
	case KeyCredential:
		return json.Unmarshal(data, &st.Credential)
	case KeyReferenceImage:
		return json.Unmarshal(data, &st.ReferenceImage)
	case KeyModePrompts:
		var texts map[generator.Mode]string
		if err := json.Unmarshal(data, &texts); err != nil {
			return err
		}
		st.setPromptTexts(texts)
	case KeyModeImages:
		var lists map[generator.Mode][]Image
		if err := json.Unmarshal(data, &lists); err != nil {
			return err
		}
		st.setImageLists(lists)
	case KeyLanePrompts:
		var lanes []string
		if err := json.Unmarshal(data, &lanes); err != nil {
			return err
		}
		st.Lanes = make([]string, LaneCount)
		copy(st.Lanes, lanes)
	case KeySettings:
		settings := defaultSettings()
		if err := json.Unmarshal(data, &settings); err != nil {
			return err
		}
		if !settings.Mode.Valid() {
			return fmt.Errorf("unknown mode %q", settings.Mode)
		}
		st.Settings = settings
	case KeyScripts:
		return json.Unmarshal(data, &st.Scripts)
	}
	return nil
}
