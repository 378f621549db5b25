package launch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alien-id/miniapp-sdk/internal/store"
	"github.com/alien-id/miniapp-sdk/internal/transport"
)

type readOnlyGlobals map[string]string

func (g readOnlyGlobals) Lookup(key string) (string, bool) {
	v, ok := g[key]
	return v, ok
}

func TestRetrieveFromGlobals(t *testing.T) {
	g := transport.NewMapGlobals(map[string]string{
		GlobalAuthToken:       "test-token",
		GlobalContractVersion: "1.2.3",
		GlobalHostVersion:     "2.0.0",
		GlobalPlatform:        "ios",
		GlobalSafeAreaInsets:  `{"top":44,"bottom":34}`,
	})
	src := NewSource(g, store.NewMemoryStore())

	p, err := src.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test-token", p.AuthToken)
	assert.Equal(t, "1.2.3", p.ContractVersion)
	assert.Equal(t, "2.0.0", p.HostAppVersion)
	assert.Equal(t, PlatformIOS, p.Platform)
	require.NotNil(t, p.SafeAreaInsets)
	assert.Equal(t, 44.0, p.SafeAreaInsets.Top)
}

func TestRetrieveFallsBackToSession(t *testing.T) {
	ctx := context.Background()
	g := transport.NewMapGlobals(map[string]string{
		GlobalAuthToken:       "test-token",
		GlobalContractVersion: "1.2.3",
	})
	st := store.NewMemoryStore()
	src := NewSource(g, st)

	_, err := src.Retrieve(ctx)
	require.NoError(t, err)

	raw, err := st.GetSession(ctx, SessionKey)
	require.NoError(t, err)
	assert.JSONEq(t, `{"authToken":"test-token","contractVersion":"1.2.3"}`, string(raw))

	g.Delete(GlobalAuthToken)
	g.Delete(GlobalContractVersion)

	p, err := src.Retrieve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test-token", p.AuthToken)
	assert.Equal(t, "1.2.3", p.ContractVersion)
}

func TestRetrieveUnavailable(t *testing.T) {
	src := NewSource(transport.NewMapGlobals(nil), store.NewMemoryStore())
	_, err := src.Retrieve(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)

	_, ok := src.Get(context.Background())
	assert.False(t, ok)

	_, err = NewSource(nil, nil).Retrieve(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOptionalFieldsStayEmpty(t *testing.T) {
	src := NewSource(readOnlyGlobals{GlobalAuthToken: "test-token"}, nil)
	p, ok := src.Get(context.Background())
	require.True(t, ok)
	assert.Equal(t, Params{AuthToken: "test-token"}, p)
}

func TestParseDropsInvalidValues(t *testing.T) {
	p, err := Parse([]byte(`{"authToken":"t","contractVersion":"invalid-version","platform":"windows","displayMode":"huge"}`))
	require.NoError(t, err)
	assert.Equal(t, "t", p.AuthToken)
	assert.Empty(t, p.ContractVersion)
	assert.Empty(t, p.Platform)
	assert.Empty(t, p.DisplayMode)

	p, err = Parse([]byte(`{"authToken":"t","platform":"android","displayMode":"fullscreen"}`))
	require.NoError(t, err)
	assert.Equal(t, PlatformAndroid, p.Platform)
	assert.Equal(t, DisplayFullscreen, p.DisplayMode)

	_, err = Parse([]byte(`nope`))
	assert.Error(t, err)
}

func TestMockForDevAndClear(t *testing.T) {
	ctx := context.Background()
	g := transport.NewMapGlobals(nil)
	st := store.NewMemoryStore()
	src := NewSource(g, st)

	require.NoError(t, src.MockForDev(Params{
		AuthToken:       "mock-token",
		ContractVersion: "0.0.1",
		HostAppVersion:  "1.0.0",
		Platform:        PlatformIOS,
		SafeAreaInsets:  &SafeAreaInsets{Top: 10},
	}))
	v, _ := g.Lookup(GlobalAuthToken)
	assert.Equal(t, "mock-token", v)
	_, ok := g.Lookup(GlobalStartParam)
	assert.False(t, ok, "empty fields are not injected")

	p, err := src.Retrieve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.0.1", p.ContractVersion)

	require.NoError(t, src.ClearMock(ctx))
	_, ok = g.Lookup(GlobalAuthToken)
	assert.False(t, ok)
	_, err = src.Retrieve(ctx)
	assert.ErrorIs(t, err, ErrUnavailable, "session copy is cleared too")
}

func TestMockForDevNeedsWritableGlobals(t *testing.T) {
	assert.ErrorIs(t, NewSource(readOnlyGlobals{}, nil).MockForDev(Params{AuthToken: "x"}), ErrGlobalsReadOnly)
	assert.ErrorIs(t, NewSource(nil, nil).ClearMock(context.Background()), ErrNoGlobalsPresent)
}
