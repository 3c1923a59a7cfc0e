package transaction

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/WhatTheGQlee/kurodb/core/storage/page"
)

func TestTransaction_PageSetIsFIFO(t *testing.T) {
	txn := New()
	p1 := page.NewPage(page.PageID(2), 64)
	p2 := page.NewPage(page.PageID(3), 64)

	txn.AddIntoPageSet(nil) // root-latch sentinel
	txn.AddIntoPageSet(p1)
	txn.AddIntoPageSet(p2)

	got, ok := txn.PopFrontPageSet()
	require.True(t, ok)
	require.Nil(t, got, "the sentinel comes out first")
	got, ok = txn.PopFrontPageSet()
	require.True(t, ok)
	require.Same(t, p1, got)
	got, ok = txn.PopFrontPageSet()
	require.True(t, ok)
	require.Same(t, p2, got)
	_, ok = txn.PopFrontPageSet()
	require.False(t, ok)
}

func TestTransaction_FindPageScansNewestFirst(t *testing.T) {
	txn := New()
	p1 := page.NewPage(page.PageID(5), 64)
	txn.AddIntoPageSet(nil)
	txn.AddIntoPageSet(p1)

	require.Same(t, p1, txn.FindPage(page.PageID(5)))
	require.Nil(t, txn.FindPage(page.PageID(6)))
}

func TestTransaction_DeletedPageSet(t *testing.T) {
	txn := New()
	txn.AddIntoDeletedPageSet(page.PageID(9))
	txn.AddIntoDeletedPageSet(page.PageID(9))
	txn.AddIntoDeletedPageSet(page.PageID(10))

	require.Len(t, txn.DeletedPageSet(), 2)
	txn.ClearDeletedPageSet()
	require.Empty(t, txn.DeletedPageSet())
}

func TestTransaction_IDsAreUnique(t *testing.T) {
	require.NotEqual(t, New().ID(), New().ID())
}
