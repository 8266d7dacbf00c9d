package object_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/glox/pkg/object"
)

func newString(s string) *object.String {
	return &object.String{Chars: []byte(s), Hash: object.HashBytes([]byte(s))}
}

func TestTable_SetGetDelete(t *testing.T) {
	tbl := object.NewTable()
	key := newString("answer")

	isNew := tbl.Set(key, object.Number(42))
	assert.True(t, isNew, "first insert of a key should report isNew")

	v, ok := tbl.Get(key)
	require.True(t, ok)
	assert.Equal(t, object.Number(42), v)

	isNew = tbl.Set(key, object.Number(43))
	assert.False(t, isNew, "overwriting an existing key should not report isNew")

	assert.True(t, tbl.Delete(key))
	_, ok = tbl.Get(key)
	assert.False(t, ok, "deleted key should no longer be found")
}

func TestTable_TombstoneReuseDoesNotDoubleCount(t *testing.T) {
	tbl := object.NewTable()
	// "a" and "i" share home slot 4 of the initial 8-slot table, so the
	// second insert probes into (and reuses) the tombstone "a" leaves.
	a, b := newString("a"), newString("i")

	tbl.Set(a, object.Bool(true))
	tbl.Delete(a)
	tbl.Set(b, object.Bool(true))

	assert.Equal(t, 1, tbl.Count(), "tombstone slot reused by a new key should not inflate count")
}

func TestTable_GrowsPastLoadFactorAndStillFindsEveryKey(t *testing.T) {
	tbl := object.NewTable()
	keys := make([]*object.String, 0, 64)
	for i := 0; i < 64; i++ {
		k := newString(string(rune('a' + (i % 26)))).Chars
		s := newString(string(k) + string(rune(i)))
		keys = append(keys, s)
		tbl.Set(s, object.Number(float64(i)))
	}
	for i, k := range keys {
		v, ok := tbl.Get(k)
		require.True(t, ok, "key %d should survive repeated growth", i)
		assert.Equal(t, object.Number(float64(i)), v)
	}
}

func TestTable_FindStringMatchesOnHashLengthAndBytes(t *testing.T) {
	tbl := object.NewTable()
	shared := newString("shared")
	tbl.Set(shared, object.Nil)

	found := tbl.FindString([]byte("shared"), object.HashBytes([]byte("shared")))
	require.NotNil(t, found)
	assert.Same(t, shared, found, "FindString should return the exact interned pointer")

	assert.Nil(t, tbl.FindString([]byte("nope"), object.HashBytes([]byte("nope"))))
}

func TestTable_AddAllCopiesLiveEntriesOnly(t *testing.T) {
	src, dst := object.NewTable(), object.NewTable()
	k1, k2 := newString("k1"), newString("k2")
	src.Set(k1, object.Number(1))
	src.Set(k2, object.Number(2))
	src.Delete(k2)

	object.AddAll(src, dst)

	_, ok := dst.Get(k1)
	assert.True(t, ok)
	_, ok = dst.Get(k2)
	assert.False(t, ok, "a tombstoned key in src should not be copied into dst")
}
