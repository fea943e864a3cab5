package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/pluisje-go/internal/store"
)

func TestRecordKey(t *testing.T) {
	assert.Equal(t, "01J0ABC", recordKey(surrealmodels.RecordID{Table: "turn", ID: "01J0ABC"}))
	assert.Equal(t, "42", recordKey(surrealmodels.RecordID{Table: "turn", ID: uint64(42)}))
}

func TestToInt(t *testing.T) {
	tests := []struct {
		in   any
		want int
		ok   bool
	}{
		{int(3), 3, true},
		{int64(4), 4, true},
		{uint64(5), 5, true},
		{float64(6), 6, true},
		{"7", 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%T", tt.in), func(t *testing.T) {
			got, ok := toInt(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLastCount(t *testing.T) {
	results := &[]surrealdb.QueryResult[any]{
		{Status: "OK", Result: nil},
		{Status: "OK", Result: uint64(11)},
		{Status: "OK", Result: nil},
	}
	n, ok := lastCount(results)
	assert.True(t, ok)
	assert.Equal(t, 11, n)

	_, ok = lastCount(nil)
	assert.False(t, ok)
}

func TestWrapQueryError(t *testing.T) {
	assert.Nil(t, wrapQueryError(nil))

	dup := &surrealdb.QueryError{Message: "Database record `account:x` already exists"}
	assert.ErrorIs(t, wrapQueryError(dup), store.ErrAlreadyExists)

	conflict := &surrealdb.QueryError{Message: "Transaction conflict: resource busy"}
	assert.ErrorIs(t, wrapQueryError(conflict), store.ErrTransactionConflict)

	other := errors.New("boom")
	assert.Equal(t, other, wrapQueryError(other))
}
