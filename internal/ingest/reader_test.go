package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"
)

func writeFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "students.csv")
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func newTestReader() *Reader {
	return NewReader(ReaderConfig{LockRetryDelay: time.Millisecond, LockMaxDelay: 4 * time.Millisecond, LockMaxAttempts: 3})
}

func TestReaderReadsRowsKeyedByHeader(t *testing.T) {
	path := writeFile(t, []byte("Transaction id,First Name,College\nTX-1,Asha,MIT\nTX-2,\"Rao, Ravi\",IIT\n"))

	rows, err := newTestReader().ReadAll(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "TX-1", rows[0].Values[ColumnTransactionID])
	assert.Equal(t, "Rao, Ravi", rows[1].Values[ColumnFirstName])
	assert.Equal(t, 3, rows[1].Line)
}

func TestReaderStripsUTF8BOM(t *testing.T) {
	path := writeFile(t, []byte("\xef\xbb\xbfTransaction id,College\nTX-1,MIT\n"))

	rows, err := newTestReader().ReadAll(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "TX-1", rows[0].Values[ColumnTransactionID])
}

func TestReaderDecodesUTF16WithBOM(t *testing.T) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	content, err := enc.String("Transaction id,First Name\nTX-7,Zoë\n")
	require.NoError(t, err)
	path := writeFile(t, []byte(content))

	rows, err := newTestReader().ReadAll(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Zoë", rows[0].Values[ColumnFirstName])
}

func TestReaderFallsBackToWindows1252(t *testing.T) {
	path := writeFile(t, []byte("First Name,College\nJos\xe9,Caf\xe9 College\n"))

	rows, err := newTestReader().ReadAll(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "José", rows[0].Values[ColumnFirstName])
	assert.Equal(t, "Café College", rows[0].Values[ColumnCollege])
}

func TestReaderDetectsWindows1252PastLongASCIIPrefix(t *testing.T) {
	var b strings.Builder
	b.WriteString("Transaction id,First Name,College\n")
	for i := 0; i < 4000; i++ {
		fmt.Fprintf(&b, "TX-%d,Student,MIT College\n", i)
	}
	require.Greater(t, b.Len(), 64*1024)
	b.WriteString("TX-LAST,Ren\xe9e,Caf\xe9 College\n")
	path := writeFile(t, []byte(b.String()))

	rows, err := newTestReader().ReadAll(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, rows, 4001)
	last := rows[len(rows)-1]
	assert.Equal(t, "Renée", last.Values[ColumnFirstName])
	assert.Equal(t, "Café College", last.Values[ColumnCollege])
}

func TestReaderPadsRaggedRows(t *testing.T) {
	path := writeFile(t, []byte("Transaction id,First Name,College\nTX-1\nTX-2,Ravi,IIT,extra\n"))

	rows, err := newTestReader().ReadAll(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, map[string]string{ColumnTransactionID: "TX-1", ColumnFirstName: "", ColumnCollege: ""}, rows[0].Values)
	assert.Len(t, rows[1].Values, 3)
}

func TestReaderHeaderOnlyAndEmptyFiles(t *testing.T) {
	for name, content := range map[string]string{"header only": "Transaction id,College\n", "empty": ""} {
		t.Run(name, func(t *testing.T) {
			rows, err := newTestReader().ReadAll(context.Background(), writeFile(t, []byte(content)))
			require.NoError(t, err)
			assert.Empty(t, rows)
		})
	}
}

func TestReaderMissingFile(t *testing.T) {
	_, err := newTestReader().ReadAll(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))

	require.Error(t, err)
	assert.True(t, IsReadKind(err, ReadNotFound))
}

var errTestLocked = errors.New("file in use")

func TestReaderRetriesLockedFile(t *testing.T) {
	r := newTestReader()
	r.isLocked = func(err error) bool { return errors.Is(err, errTestLocked) }
	calls := 0
	r.open = func(string) (io.ReadCloser, error) {
		calls++
		if calls < 3 {
			return nil, errTestLocked
		}
		return io.NopCloser(strings.NewReader("Transaction id\nTX-1\n")), nil
	}

	rows, err := r.ReadAll(context.Background(), "students.csv")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 3, calls)
}

func TestReaderGivesUpOnLockedFile(t *testing.T) {
	r := newTestReader()
	r.isLocked = func(err error) bool { return errors.Is(err, errTestLocked) }
	r.open = func(string) (io.ReadCloser, error) { return nil, errTestLocked }

	_, err := r.ReadAll(context.Background(), "students.csv")

	var readErr *ReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, ReadLocked, readErr.Kind)
	assert.Equal(t, 3, readErr.Attempts)
	assert.ErrorIs(t, err, errTestLocked)
}

func TestReaderStopsWhenCallbackFails(t *testing.T) {
	path := writeFile(t, []byte("Transaction id\nTX-1\nTX-2\n"))
	stop := errors.New("stop")
	seen := 0

	err := newTestReader().Stream(context.Background(), path, func(Row) error {
		seen++
		return stop
	})

	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, seen)
}
