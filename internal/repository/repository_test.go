package repository

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/microrager/internal/apperror"
	"github.com/sakif/microrager/internal/blobstore/local"
	"github.com/sakif/microrager/internal/model"
)

const testDate = "2024-01-01"

// failingStore returns err from every call.
type failingStore struct{ err error }

func (f failingStore) Get(context.Context, string) ([]byte, error) { return nil, f.err }
func (f failingStore) Put(context.Context, string, []byte) error    { return f.err }

func msg(id string) model.Message {
	return model.Message{
		ID:        id,
		Date:      testDate,
		Text:      "text " + id,
		CreatedAt: model.NewTimestamp(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)),
		Votes:     map[string]float64{},
	}
}

func ids(messages []model.Message) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.ID)
	}
	return out
}

// writeSeed stores a seed document and returns a Collections whose runtime
// documents live in a separate scratch directory.
func newSeeded(t *testing.T, seed ...model.Message) (*Collections, string) {
	t.Helper()
	seedDir := t.TempDir()
	data, err := json.Marshal(seed)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(seedDir, "seed.json"), data, 0644))

	scratch := t.TempDir()
	repo := New(local.New(scratch), Options{
		Seed:   NewSeed(local.New(seedDir), "seed.json"),
		Indent: true,
	})
	return repo, scratch
}

func TestLoad_NoDocumentIsEmpty(t *testing.T) {
	repo := New(local.New(t.TempDir()), Options{})

	messages, err := repo.Load(context.Background(), testDate)

	require.NoError(t, err)
	assert.NotNil(t, messages)
	assert.Empty(t, messages)
}

func TestLoad_NoDocumentWithSeedIsSeedOnly(t *testing.T) {
	repo, _ := newSeeded(t, msg("A"), msg("B"))

	messages, err := repo.Load(context.Background(), testDate)

	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ids(messages))
}

func TestLoad_MissingSeedFileIsEmptySeed(t *testing.T) {
	repo := New(local.New(t.TempDir()), Options{
		Seed: NewSeed(local.New(t.TempDir()), "absent.json"),
	})

	messages, err := repo.Load(context.Background(), testDate)

	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestSave_NeverWritesSeedRecords(t *testing.T) {
	repo, scratch := newSeeded(t, msg("A"), msg("B"))
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, testDate, []model.Message{msg("A"), msg("C")}))

	raw, err := os.ReadFile(filepath.Join(scratch, "2024-01-01-microrager.json"))
	require.NoError(t, err)
	var runtime []model.Message
	require.NoError(t, json.Unmarshal(raw, &runtime))
	assert.Equal(t, []string{"C"}, ids(runtime))

	messages, err := repo.Load(ctx, testDate)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, ids(messages))
}

func TestSave_KeepsRecordsWithoutID(t *testing.T) {
	repo, _ := newSeeded(t, msg("A"), model.Message{Text: "anonymous seed"})
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, testDate, []model.Message{msg("A"), {Text: "no id"}}))

	messages, err := repo.Load(ctx, testDate)
	require.NoError(t, err)
	// seed (A, "") followed by the id-less runtime record
	require.Len(t, messages, 3)
	assert.Equal(t, "no id", messages[2].Text)
}

func TestSave_WithoutSeedWritesVerbatim(t *testing.T) {
	scratch := t.TempDir()
	repo := New(local.New(scratch), Options{Collection: "moods"})
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, testDate, []model.Message{msg("A"), msg("B")}))

	raw, err := os.ReadFile(filepath.Join(scratch, "2024-01-01-moods.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "\n  ", "compact JSON expected without Indent")

	messages, err := repo.Load(ctx, testDate)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ids(messages))
}

func TestSave_EmptyCollectionIsArray(t *testing.T) {
	scratch := t.TempDir()
	repo := New(local.New(scratch), Options{})

	require.NoError(t, repo.Save(context.Background(), testDate, nil))

	raw, err := os.ReadFile(filepath.Join(scratch, "2024-01-01-microrager.json"))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
}

func TestLoad_PreservesVotesAndFillsMissing(t *testing.T) {
	scratch := t.TempDir()
	doc := `[{"id":"A","votes":{"red":2}},{"id":"B","votes":null},{"id":"C"}]`
	require.NoError(t, os.WriteFile(filepath.Join(scratch, "2024-01-01-microrager.json"), []byte(doc), 0644))
	repo := New(local.New(scratch), Options{})

	messages, err := repo.Load(context.Background(), testDate)

	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, 2.0, messages[0].Votes["red"])
	assert.NotNil(t, messages[1].Votes)
	assert.NotNil(t, messages[2].Votes)
}

func TestLoad_MalformedDocumentIsStoreError(t *testing.T) {
	scratch := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(scratch, "2024-01-01-microrager.json"), []byte(`{not json`), 0644))
	repo := New(local.New(scratch), Options{})

	_, err := repo.Load(context.Background(), testDate)

	assert.True(t, errors.Is(err, apperror.ErrStore))
}

func TestLoad_BackendFailurePropagates(t *testing.T) {
	repo := New(failingStore{err: apperror.Store("boom", io.ErrUnexpectedEOF)}, Options{})

	_, err := repo.Load(context.Background(), testDate)

	assert.True(t, errors.Is(err, apperror.ErrStore))
}

func TestSave_BackendFailurePropagates(t *testing.T) {
	repo := New(failingStore{err: apperror.Store("boom", io.ErrUnexpectedEOF)}, Options{})

	err := repo.Save(context.Background(), testDate, []model.Message{msg("A")})

	assert.True(t, errors.Is(err, apperror.ErrStore))
}
