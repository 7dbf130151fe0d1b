package moderation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu    sync.Mutex
	terms []string
	err   error
	loads int
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) Load(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	return s.terms, s.err
}

func (s *fakeSource) set(terms []string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terms, s.err = terms, err
}

func (s *fakeSource) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

func TestModeratorStartsWithBuiltinPolicy(t *testing.T) {
	m := NewModerator(nil)
	assert.True(t, m.ContainsProfanity("fuck").HasProfanity)
	assert.Equal(t, "this is a **** test", m.FilterProfanity("this is a fuck test"))
}

func TestModeratorReloadKeepsPreviousPolicyOnFailure(t *testing.T) {
	src := &fakeSource{terms: []string{"zonk"}}
	m := NewModerator(src)

	require.NoError(t, m.Reload(context.Background()))
	assert.True(t, m.ContainsProfanity("zonk!").HasProfanity)
	assert.False(t, m.ContainsProfanity("fuck").HasProfanity)

	src.set(nil, errors.New("backend down"))
	assert.Error(t, m.Reload(context.Background()))
	assert.True(t, m.ContainsProfanity("zonk").HasProfanity)

	src.set([]string{" ", ""}, nil)
	assert.ErrorIs(t, m.Reload(context.Background()), ErrEmptyPolicy)
	assert.True(t, m.ContainsProfanity("zonk").HasProfanity)
}

func TestModeratorRunRefreshesUntilCancelled(t *testing.T) {
	src := &fakeSource{terms: []string{"zonk"}}
	m := NewModerator(src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return m.ContainsProfanity("zonk").HasProfanity }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.GreaterOrEqual(t, src.loadCount(), 1)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("terms:\n  - zonk\n  - blarg\n"), 0o600))

	terms, err := FileSource{Path: path}.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"zonk", "blarg"}, terms)

	_, err = FileSource{Path: filepath.Join(t.TempDir(), "missing.yaml")}.Load(context.Background())
	assert.Error(t, err)
}

type stubLister []string

func (s stubLister) ListTerms(context.Context) ([]string, error) { return s, nil }

type stubObjects map[string][]byte

func (s stubObjects) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := s[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

func TestTableAndObjectSources(t *testing.T) {
	terms, err := TableSource{Terms: stubLister{"zonk"}}.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"zonk"}, terms)

	doc, err := EncodePolicy([]string{"blarg"})
	require.NoError(t, err)
	objects := stubObjects{"policy.yaml": doc}

	terms, err = ObjectSource{Store: objects, Key: "policy.yaml"}.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"blarg"}, terms)

	_, err = ObjectSource{Store: objects, Key: "other.yaml"}.Load(context.Background())
	assert.Error(t, err)
}

func TestParsePolicyRejectsMalformedYAML(t *testing.T) {
	_, err := ParsePolicy([]byte("terms: [unterminated"))
	assert.Error(t, err)
}
