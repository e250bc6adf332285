package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifier(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"runs", `"runs"`},
		{"airmap.district_years", `"airmap"."district_years"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, Identifier(tt.input).Sanitize())
		})
	}
}

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.Background(), nil, "airmap.district_years", []string{"code", "year"}, nil, 0)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Batches(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"code", "year"}
	ident := pgx.Identifier{"airmap", "district_years"}
	mock.ExpectCopyFrom(ident, cols).WillReturnResult(2)
	mock.ExpectCopyFrom(ident, cols).WillReturnResult(2)
	mock.ExpectCopyFrom(ident, cols).WillReturnResult(1)

	rows := [][]any{{"09161", 2019}, {"09162", 2019}, {"09163", 2019}, {"09161", 2023}, {"09162", 2023}}
	n, err := CopyFrom(context.Background(), mock, "airmap.district_years", cols, rows, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_ErrorKeepsPartialCount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"code"}
	mock.ExpectCopyFrom(pgx.Identifier{"runs"}, cols).WillReturnResult(1)
	mock.ExpectCopyFrom(pgx.Identifier{"runs"}, cols).WillReturnError(fmt.Errorf("permission denied"))

	n, err := CopyFrom(context.Background(), mock, "runs", cols, [][]any{{"a"}, {"b"}}, 1)
	require.Error(t, err)
	assert.Equal(t, int64(1), n)
	assert.Contains(t, err.Error(), "COPY INTO runs (rows 1-2)")
	assert.NoError(t, mock.ExpectationsWereMet())
}
