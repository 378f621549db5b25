package launch

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/alien-id/miniapp-sdk/internal/store"
	"github.com/alien-id/miniapp-sdk/internal/transport"
)

const (
	SessionKey        = "launch_params"
	DefaultSessionTTL = 24 * time.Hour
)

var (
	ErrUnavailable      = errors.New("launch params not available: running outside a host app? use MockForDev for development")
	ErrGlobalsReadOnly  = errors.New("launch globals cannot be overwritten in this environment")
	ErrNoGlobalsPresent = errors.New("no globals in this environment")
)

// Source resolves launch params from host globals, falling back to the
// session cache so they survive a restart within one session.
type Source struct {
	globals transport.Globals
	store   store.Store
	ttl     time.Duration
	log     zerolog.Logger
}

type Option func(*Source)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Source) {
		s.log = l
	}
}

func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Source) {
		s.ttl = ttl
	}
}

// NewSource reads from globals and caches into st. Either may be nil.
func NewSource(globals transport.Globals, st store.Store, opts ...Option) *Source {
	s := &Source{globals: globals, store: st, ttl: DefaultSessionTTL, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Retrieve returns params from the globals, persisting them, or from the
// session cache. ErrUnavailable when neither has them.
func (s *Source) Retrieve(ctx context.Context) (Params, error) {
	if p, ok := s.fromGlobals(); ok {
		s.persist(ctx, p)
		return p, nil
	}
	if p, ok := s.fromSession(ctx); ok {
		return p, nil
	}
	return Params{}, ErrUnavailable
}

// Get is Retrieve without the error.
func (s *Source) Get(ctx context.Context) (Params, bool) {
	p, err := s.Retrieve(ctx)
	return p, err == nil
}

func (s *Source) fromGlobals() (Params, bool) {
	if s.globals == nil {
		return Params{}, false
	}
	token, ok := s.globals.Lookup(GlobalAuthToken)
	if !ok {
		return Params{}, false
	}
	get := func(key string) string {
		v, _ := s.globals.Lookup(key)
		return v
	}
	p := Params{
		AuthToken:       token,
		ContractVersion: get(GlobalContractVersion),
		HostAppVersion:  get(GlobalHostVersion),
		Platform:        Platform(get(GlobalPlatform)),
		StartParam:      get(GlobalStartParam),
		DisplayMode:     DisplayMode(get(GlobalDisplayMode)),
	}
	if raw := get(GlobalSafeAreaInsets); raw != "" {
		var insets SafeAreaInsets
		if err := json.Unmarshal([]byte(raw), &insets); err == nil {
			p.SafeAreaInsets = &insets
		} else {
			s.log.Debug().Err(err).Msg("ignore malformed safe area insets")
		}
	}
	return p.sanitized(), true
}

func (s *Source) fromSession(ctx context.Context) (Params, bool) {
	if s.store == nil {
		return Params{}, false
	}
	raw, err := s.store.GetSession(ctx, SessionKey)
	if err != nil {
		s.log.Warn().Err(err).Msg("read launch params from session failed")
		return Params{}, false
	}
	if raw == nil {
		return Params{}, false
	}
	p, err := Parse(raw)
	if err != nil {
		s.log.Debug().Err(err).Msg("ignore corrupt session launch params")
		return Params{}, false
	}
	return p, true
}

// persist is best effort: a full or disabled cache never fails Retrieve.
func (s *Source) persist(ctx context.Context, p Params) {
	if s.store == nil {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := s.store.SetSession(ctx, SessionKey, raw, s.ttl); err != nil {
		s.log.Warn().Err(err).Msg("persist launch params failed")
	}
}

// MockForDev injects p into the globals the way a host would. Empty fields
// are left untouched. Development only.
func (s *Source) MockForDev(p Params) error {
	g, err := s.mutable()
	if err != nil {
		return err
	}
	s.log.Warn().Msg("using mock launch params, dev mode")

	set := func(key, value string) {
		if value != "" {
			g.Set(key, value)
		}
	}
	set(GlobalAuthToken, p.AuthToken)
	set(GlobalContractVersion, p.ContractVersion)
	set(GlobalHostVersion, p.HostAppVersion)
	set(GlobalPlatform, string(p.Platform))
	set(GlobalStartParam, p.StartParam)
	set(GlobalDisplayMode, string(p.DisplayMode))
	if p.SafeAreaInsets != nil {
		raw, err := json.Marshal(p.SafeAreaInsets)
		if err != nil {
			return err
		}
		g.Set(GlobalSafeAreaInsets, string(raw))
	}
	return nil
}

// ClearMock removes injected globals and the cached session copy.
func (s *Source) ClearMock(ctx context.Context) error {
	g, err := s.mutable()
	if err != nil {
		return err
	}
	for _, key := range allGlobals {
		g.Delete(key)
	}
	if s.store != nil {
		if err := s.store.DeleteSession(ctx, SessionKey); err != nil {
			return err
		}
	}
	return nil
}

func (s *Source) mutable() (transport.MutableGlobals, error) {
	if s.globals == nil {
		return nil, ErrNoGlobalsPresent
	}
	g, ok := s.globals.(transport.MutableGlobals)
	if !ok {
		return nil, ErrGlobalsReadOnly
	}
	return g, nil
}
