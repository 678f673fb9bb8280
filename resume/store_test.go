package resume

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"emperror.dev/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memBackend struct {
	infos   []Info
	loadErr error
	saveErr error
	deletes int
}

func (m *memBackend) Load() ([]Info, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.infos == nil {
		return nil, ErrNoRecord
	}
	return m.infos, nil
}

func (m *memBackend) Save(infos []Info) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.infos = infos
	return nil
}

func (m *memBackend) Delete() error {
	m.deletes++
	m.infos = nil
	return nil
}

func tokenA() Info {
	return Info{ResumeURL: "wss://a.gateway", Session: &Session{ID: "aaa", Sequence: 10}}
}

func tokenB() Info {
	return Info{ResumeURL: "wss://b.gateway", Session: &Session{ID: "bbb", Sequence: 20}}
}

func tempFile(t *testing.T) string {
	dir, err := ioutil.TempDir("", "resume")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, DefaultFileName)
}

func TestFileRoundTrip(t *testing.T) {
	path := tempFile(t)

	store := NewStore(NewFileBackend(path), ExactMatch)
	require.NoError(t, store.Save([]Info{tokenA(), tokenB()}))

	// a fresh store acts like a new process
	restored := NewStore(NewFileBackend(path), ExactMatch).Restore(2)
	assert.Equal(t, []Info{tokenA(), tokenB()}, restored)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "record should be deleted after restore")

	// single use
	assert.Equal(t, Fresh(2), store.Restore(2))
}

func TestFileFormat(t *testing.T) {
	path := tempFile(t)
	require.NoError(t, NewFileBackend(path).Save([]Info{tokenA(), {}}))

	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"resume_url":"wss://a.gateway","session":{"id":"aaa","sequence":10}},{}]`, string(data))
}

func TestSaveSkipsAllEmpty(t *testing.T) {
	path := tempFile(t)
	store := NewStore(NewFileBackend(path), ExactMatch)

	require.NoError(t, store.Save([]Info{{}, {}}))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestSaveKeepsEmptyEntriesInOrder(t *testing.T) {
	b := &memBackend{}
	store := NewStore(b, ExactMatch)

	require.NoError(t, store.Save([]Info{{}, tokenB()}))
	assert.Equal(t, []Info{{}, tokenB()}, b.infos)
}

func TestSaveError(t *testing.T) {
	b := &memBackend{saveErr: errors.New("disk full")}
	err := NewStore(b, ExactMatch).Save([]Info{tokenA()})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRestoreMalformedFile(t *testing.T) {
	path := tempFile(t)
	require.NoError(t, ioutil.WriteFile(path, []byte("{not json"), 0644))

	restored := NewStore(NewFileBackend(path), ExactMatch).Restore(3)
	assert.Equal(t, Fresh(3), restored)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "malformed record should be deleted too")
}

func TestRestoreLoadErrorStillDeletes(t *testing.T) {
	b := &memBackend{loadErr: errors.New("connection refused")}
	restored := NewStore(b, AtLeastHalf).Restore(4)

	assert.Equal(t, Fresh(4), restored)
	assert.Equal(t, 1, b.deletes)
}

func TestReconcile(t *testing.T) {
	cases := []struct {
		name      string
		policy    Policy
		stored    int
		requested int
		reused    bool
	}{
		{"exact same", ExactMatch, 4, 4, true},
		{"exact fewer", ExactMatch, 3, 4, false},
		{"exact more", ExactMatch, 5, 4, false},
		{"half same", AtLeastHalf, 4, 4, true},
		{"half exactly half", AtLeastHalf, 2, 4, true},
		{"half below", AtLeastHalf, 1, 4, false},
		{"half more", AtLeastHalf, 8, 4, true},
		{"half odd", AtLeastHalf, 2, 5, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			stored := make([]Info, c.stored)
			for i := range stored {
				stored[i] = tokenA()
			}

			b := &memBackend{infos: stored}
			restored := NewStore(b, c.policy).Restore(c.requested)
			if c.reused {
				assert.Equal(t, stored, restored)
			} else {
				assert.Equal(t, Fresh(c.requested), restored)
			}
			assert.Equal(t, 1, b.deletes)
		})
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("half")
	require.NoError(t, err)
	assert.True(t, p(2, 4))

	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.False(t, p(2, 4))

	_, err = ParsePolicy("sometimes")
	assert.Error(t, err)
}

func TestInfoIsEmpty(t *testing.T) {
	assert.True(t, Info{}.IsEmpty())
	assert.False(t, Info{ResumeURL: "x"}.IsEmpty())
	assert.False(t, Info{Session: &Session{}}.IsEmpty())
	assert.True(t, AllEmpty(nil))
	assert.False(t, AllEmpty([]Info{{}, tokenA()}))
}
