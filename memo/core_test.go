package memo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/neelbauman/beautyspot/logger"
	"github.com/neelbauman/beautyspot/serializer"
	"github.com/neelbauman/beautyspot/store"
)

func newTestCore(t *testing.T) (*Core, *store.SQLiteMetadataStore) {
	t.Helper()
	meta, err := store.NewSQLiteMetadataStore(":memory:")
	assert.NoError(t, err)
	assert.NoError(t, meta.InitSchema(context.Background()))

	blob, err := store.NewLocalBlobStore(t.TempDir())
	assert.NoError(t, err)

	facade := NewFacade(meta, blob, logger.NewTestLogger())
	core := New(facade, serializer.NewRegistry(), logger.NewTestLogger())
	return core, meta
}

func TestInvoke_HitPathIsIdempotentAndExecutesOnce(t *testing.T) {
	core, _ := newTestCore(t)
	calls := 0
	fn := func() (any, error) {
		calls++
		return int64(len("hello") * 2), nil
	}

	v1, err := core.Invoke(context.Background(), "double_len", fn, []any{"hello"}, nil, CallConfig{})
	assert.NoError(t, err)
	assert.Equal(t, int64(10), v1)
	assert.Equal(t, 1, calls)

	v2, err := core.Invoke(context.Background(), "double_len", fn, []any{"hello"}, nil, CallConfig{})
	assert.NoError(t, err)
	assert.Equal(t, int64(10), v2)
	assert.Equal(t, 1, calls, "second call should be a cache hit, not re-executing fn")
}

func TestInvoke_VersionIsolation(t *testing.T) {
	core, _ := newTestCore(t)
	calls := 0
	fn := func() (any, error) {
		calls++
		return int64(calls), nil
	}

	_, err := core.Invoke(context.Background(), "f", fn, []any{1}, nil, CallConfig{Version: "v1"})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)

	_, err = core.Invoke(context.Background(), "f", fn, []any{1}, nil, CallConfig{Version: "v2"})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls, "changing version must not observe the v1 record")
}

func TestInvoke_FailureIsNotCached(t *testing.T) {
	core, _ := newTestCore(t)
	calls := 0
	fn := func() (any, error) {
		calls++
		if calls == 1 {
			return nil, assertError{}
		}
		return int64(42), nil
	}

	_, err := core.Invoke(context.Background(), "f", fn, []any{1}, nil, CallConfig{})
	assert.Error(t, err)

	v, err := core.Invoke(context.Background(), "f", fn, []any{1}, nil, CallConfig{})
	assert.NoError(t, err)
	assert.Equal(t, int64(42), v)
	assert.Equal(t, 2, calls)
}

type assertError struct{}

func (assertError) Error() string { return "boom" }

func TestInvoke_CorruptionRecoversAsMiss(t *testing.T) {
	core, meta := newTestCore(t)
	calls := 0
	fn := func() (any, error) {
		calls++
		return int64(1), nil
	}

	_, err := core.Invoke(context.Background(), "f", fn, []any{1}, nil, CallConfig{})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)

	// Corrupt the stored record's bytes directly.
	key, _, err := lookupOnlyKey(core, "f", []any{1})
	assert.NoError(t, err)
	rec, found, err := meta.Get(context.Background(), key)
	assert.NoError(t, err)
	assert.True(t, found)
	rec.Value = []byte{0xFF, 0xFF, 0xFF}
	assert.NoError(t, meta.Put(context.Background(), rec))

	v, err := core.Invoke(context.Background(), "f", fn, []any{1}, nil, CallConfig{})
	assert.NoError(t, err, "corruption must never escape as an error")
	assert.Equal(t, int64(1), v)
	assert.Equal(t, 2, calls, "corrupted record must force re-execution")
}

// lookupOnlyKey recomputes the cache key the same way Core.Invoke does, for
// tests that need to reach into the metadata store directly.
func lookupOnlyKey(core *Core, fnName string, args []any) (string, string, error) {
	canonicalBytes, err := computeSeed(CallConfig{}.KeyPolicy, args, nil)
	if err != nil {
		return "", "", err
	}
	key, seedHex := cacheKey(fnName, canonicalBytes, "")
	return key, seedHex, nil
}

func TestInvoke_SaveBlobRoutesToBlobStore(t *testing.T) {
	core, meta := newTestCore(t)
	fn := func() (any, error) { return "a large-ish value", nil }

	_, err := core.Invoke(context.Background(), "f", fn, []any{1}, nil, CallConfig{SaveBlob: true})
	assert.NoError(t, err)

	key, _, err := lookupOnlyKey(core, "f", []any{1})
	assert.NoError(t, err)
	rec, found, err := meta.Get(context.Background(), key)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, store.File, rec.ResultType)
}

func TestDelete_RemovesRecordAndBlob(t *testing.T) {
	core, meta := newTestCore(t)
	fn := func() (any, error) { return "value", nil }

	_, err := core.Invoke(context.Background(), "f", fn, []any{1}, nil, CallConfig{SaveBlob: true})
	assert.NoError(t, err)

	key, _, err := lookupOnlyKey(core, "f", []any{1})
	assert.NoError(t, err)

	assert.NoError(t, core.Delete(context.Background(), key))
	_, found, err := meta.Get(context.Background(), key)
	assert.NoError(t, err)
	assert.False(t, found)

	// Idempotent.
	assert.NoError(t, core.Delete(context.Background(), key))
}

func TestDeleteAll_ClearsEveryRecordAcrossFunctions(t *testing.T) {
	core, meta := newTestCore(t)

	for i, fnName := range []string{"f", "g", "h"} {
		i := i
		fn := func() (any, error) { return i, nil }
		_, err := core.Invoke(context.Background(), fnName, fn, []any{i}, nil, CallConfig{SaveBlob: i == 0})
		assert.NoError(t, err)
	}

	history, err := core.History(context.Background(), 10)
	assert.NoError(t, err)
	assert.Len(t, history, 3)

	assert.NoError(t, core.DeleteAll(context.Background()))

	history, err = core.History(context.Background(), 10)
	assert.NoError(t, err)
	assert.Empty(t, history)

	raw, err := meta.History(context.Background(), 10)
	assert.NoError(t, err)
	assert.Empty(t, raw)
}
