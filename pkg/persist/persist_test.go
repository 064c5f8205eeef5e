package persist_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/boundcheck/pkg/persist"
)

type sample struct {
	Name   string
	Prefix []string
	Count  int
}

func TestCodecs(t *testing.T) {
	t.Parallel()

	codecs := map[string]persist.Codec{
		".json":     persist.NewJSONCodec(),
		".gob":      persist.NewGobCodec(),
		".gob.lz4":  persist.NewLZ4Codec(persist.NewGobCodec()),
		".json.lz4": persist.NewLZ4Codec(&persist.JSONCodec{}),
	}

	in := sample{Name: "lostupdate", Prefix: []string{"a", "b", "a"}, Count: 3}

	for ext, codec := range codecs {
		t.Run(ext, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, ext, codec.Extension())

			data, err := persist.Marshal(codec, in)
			require.NoError(t, err)

			var out sample
			require.NoError(t, persist.Unmarshal(codec, data, &out))
			assert.Equal(t, in, out)
		})
	}
}

func TestJSONCodecRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	var out sample

	err := persist.Unmarshal(persist.NewJSONCodec(), []byte(`{"Name":"x","Extra":1}`), &out)
	require.Error(t, err)
}

func TestLZ4CodecRejectsGarbage(t *testing.T) {
	t.Parallel()

	var out sample

	err := persist.Unmarshal(persist.NewLZ4Codec(persist.NewGobCodec()), []byte("not lz4 at all"), &out)
	require.Error(t, err)
}

func TestWriteFileAtomicReplaces(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "state.bin")

	require.NoError(t, persist.WriteFileAtomic(path, []byte("one")))
	require.NoError(t, persist.WriteFileAtomic(path, []byte("two")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWriteFileExclusive(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trace.json")

	require.NoError(t, persist.WriteFileExclusive(path, []byte("first")))

	err := persist.WriteFileExclusive(path, []byte("second"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrExist))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
}

func TestPersister(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := persist.NewPersister[sample](persist.NewJSONCodec())
	path := filepath.Join(dir, "s"+p.Extension())

	require.NoError(t, p.Save(path, &sample{Name: "a", Count: 1}))
	require.NoError(t, p.Save(path, &sample{Name: "b", Count: 2}))

	got, err := p.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "b", got.Name)

	require.ErrorIs(t, p.Create(path, &sample{}), os.ErrExist)

	_, err = p.Load(filepath.Join(dir, "missing.json"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
