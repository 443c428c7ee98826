package prefs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gestured/internal/action"
	"gestured/internal/gesture"
	"gestured/internal/scancode"
)

func testCatalog() *gesture.Catalog {
	return gesture.New("", []gesture.Definition{
		{ScanCode: 50, DefaultAction: "torch"},
		{ScanCode: 250, DefaultAction: "wake"},
	}, nil)
}

type failingStore struct{ err error }

func (s failingStore) GetString(string) (string, bool, error) { return "", false, s.err }

func TestKey(t *testing.T) {
	assert.Equal(t, "screen_off_gesture_250", Key("", 250))
	assert.Equal(t, "bacon_50", Key("bacon", 50))
}

func TestResolveFallsBackToDefault(t *testing.T) {
	r := NewResolver(NewMemoryStore(), testCatalog(), "", nil)
	assert.Equal(t, action.Ref("wake"), r.Resolve(250))
}

func TestResolveOverrideAndClear(t *testing.T) {
	store := NewMemoryStore()
	r := NewResolver(store, testCatalog(), "", nil)

	require.NoError(t, store.SetString(Key("", 250), "camera"))
	assert.Equal(t, action.Ref("camera"), r.Resolve(250))

	require.NoError(t, store.Delete(Key("", 250)))
	assert.Equal(t, action.Ref("wake"), r.Resolve(250))
}

func TestResolveNullOverrideIsReturned(t *testing.T) {
	store := NewMemoryStore()
	r := NewResolver(store, testCatalog(), "", nil)

	require.NoError(t, store.SetString(Key("", 50), string(action.Null)))
	assert.Equal(t, action.Null, r.Resolve(50))
}

func TestResolveIgnoresBlankAndMalformed(t *testing.T) {
	for _, v := range []string{"", "   ", "cam\x00era"} {
		store := NewMemoryStore()
		require.NoError(t, store.SetString(Key("", 250), v))
		r := NewResolver(store, testCatalog(), "", nil)
		assert.Equal(t, action.Ref("wake"), r.Resolve(250), "value %q", v)
	}
}

func TestResolveStoreErrorFallsBack(t *testing.T) {
	r := NewResolver(failingStore{err: errors.New("disk on fire")}, testCatalog(), "", nil)
	assert.Equal(t, action.Ref("torch"), r.Resolve(50))

	r = NewResolver(failingStore{err: ErrNotFound}, testCatalog(), "", nil)
	assert.Equal(t, action.Ref("torch"), r.Resolve(50))
}

func TestResolveNilStore(t *testing.T) {
	r := NewResolver(nil, testCatalog(), "", nil)
	assert.Equal(t, action.Ref("wake"), r.Resolve(250))
}

func TestResolvePerDevicePrefix(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.SetString(Key("other", 250), "camera"))

	r := NewResolver(store, testCatalog(), "bacon", nil)
	assert.Equal(t, "bacon", r.Prefix())
	assert.Equal(t, action.Ref("wake"), r.Resolve(250))

	require.NoError(t, store.SetString(Key("bacon", 250), "music"))
	assert.Equal(t, action.Ref("music"), r.Resolve(250))
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.db")
	s, err := OpenSQLite(path, 1000)
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.GetString("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetString("a", "1"))
	require.NoError(t, s.SetString("a", "2"))
	require.NoError(t, s.SetString("b", "3"))

	v, ok, err := s.GetString("a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", v)

	all, err := s.All()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "2", "b": "3"}, all)

	require.NoError(t, s.Delete("a"))
	require.NoError(t, s.Delete("a"))
	_, ok, err = s.GetString("a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.db")
	s, err := OpenSQLite(path, 1000)
	require.NoError(t, err)
	require.NoError(t, s.SetString(Key("", 250), "camera"))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path, 1000)
	require.NoError(t, err)
	defer s.Close()

	r := NewResolver(s, testCatalog(), "", nil)
	assert.Equal(t, action.Ref("camera"), r.Resolve(250))
}

func TestSQLiteCloseNilDB(t *testing.T) {
	s := &SQLiteStore{}
	assert.NoError(t, s.Close())
}

func TestFileStoreMissingFile(t *testing.T) {
	f, err := OpenFile(filepath.Join(t.TempDir(), "prefs.toml"), nil)
	require.NoError(t, err)
	defer f.Close()

	_, ok, err := f.GetString("x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.toml")
	f, err := OpenFile(path, nil)
	require.NoError(t, err)
	require.NoError(t, f.SetString(Key("", 250), "camera"))
	require.NoError(t, f.SetString(Key("", 50), "torch"))
	require.NoError(t, f.Delete(Key("", 50)))
	require.NoError(t, f.Close())

	g, err := OpenFile(path, nil)
	require.NoError(t, err)
	defer g.Close()

	v, ok, err := g.GetString(Key("", 250))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "camera", v)

	_, ok, _ = g.GetString(Key("", 50))
	assert.False(t, ok)
}

func TestFileStoreInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.toml")
	require.NoError(t, os.WriteFile(path, []byte("[preferences\nbroken"), 0600))

	_, err := OpenFile(path, nil)
	assert.Error(t, err)
}

func TestFileStoreReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.toml")
	require.NoError(t, os.WriteFile(path, []byte("[preferences]\nscreen_off_gesture_250 = \"camera\"\n"), 0600))

	f, err := OpenFile(path, nil)
	require.NoError(t, err)
	reloaded := make(chan struct{}, 4)
	f.OnReload(func() { reloaded <- struct{}{} })
	require.NoError(t, f.Watch())
	defer f.Close()

	r := NewResolver(f, testCatalog(), "", nil)
	assert.Equal(t, action.Ref("camera"), r.Resolve(250))

	require.NoError(t, os.WriteFile(path, []byte("[preferences]\nscreen_off_gesture_250 = \"music\"\n"), 0600))

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("preference file was not reloaded")
	}
	assert.Eventually(t, func() bool {
		return r.Resolve(250) == action.Ref("music")
	}, 5*time.Second, 20*time.Millisecond)
}

func TestResolveUnknownCodeReturnsEmpty(t *testing.T) {
	r := NewResolver(NewMemoryStore(), testCatalog(), "", nil)
	assert.True(t, r.Resolve(scancode.Code(7)).IsNull())
}
