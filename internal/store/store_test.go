package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTablePutGetDelete(t *testing.T) {
	tbl := NewTable()
	_, ok := tbl.Get([]byte("k"))
	assert.False(t, ok)

	tbl.Put([]byte("k"), []byte("v1"))
	v, ok := tbl.Get([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), v)

	tbl.Put([]byte("k"), []byte("v2"))
	v, ok = tbl.Get([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), v)

	assert.True(t, tbl.Delete([]byte("k")))
	assert.False(t, tbl.Delete([]byte("k")))
	_, ok = tbl.Get([]byte("k"))
	assert.False(t, ok)
}

func TestGetReturnsIndependentCopy(t *testing.T) {
	tbl := NewTable()
	tbl.Put([]byte("k"), []byte("v"))
	v, _ := tbl.Get([]byte("k"))
	v[0] = 'X'

	v2, _ := tbl.Get([]byte("k"))
	assert.Equal(t, byte('v'), v2[0])
}

func TestStoreIsolatesTenantsAndTables(t *testing.T) {
	s := NewStore()
	t1 := s.Table(1, 0)
	t2 := s.Table(2, 0)
	assert.NotSame(t, t1, t2)

	t1.Put([]byte("k"), []byte("tenant1"))
	_, ok := t2.Get([]byte("k"))
	assert.False(t, ok)

	same := s.Table(1, 0)
	assert.Same(t, t1, same)
}
