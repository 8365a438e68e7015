package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ReadErrorKind classifies read failures.
type ReadErrorKind string

const (
	ReadLocked   ReadErrorKind = "locked"
	ReadNotFound ReadErrorKind = "not_found"
	ReadIO       ReadErrorKind = "io"
)

// ReadError is returned when the source file cannot be read.
type ReadError struct {
	Kind     ReadErrorKind
	Path     string
	Attempts int
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s (%s): %v", e.Path, e.Kind, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// IsReadKind reports whether err is a ReadError of the given kind.
func IsReadKind(err error, kind ReadErrorKind) bool {
	var re *ReadError
	return errors.As(err, &re) && re.Kind == kind
}

// Row is one data row keyed by normalised header. Err is set when the line itself
// could not be parsed; Values is then nil.
type Row struct {
	Line   int
	Values map[string]string
	Err    error
}

// ReaderConfig bounds the retry loop for locked files.
type ReaderConfig struct {
	LockRetryDelay  time.Duration
	LockMaxDelay    time.Duration
	LockMaxAttempts int
	Logger          *zap.Logger
}

// Reader streams delimited files exported by spreadsheet tools.
type Reader struct {
	retryDelay  time.Duration
	maxDelay    time.Duration
	maxAttempts int
	logger      *zap.Logger

	open     func(string) (io.ReadCloser, error)
	isLocked func(error) bool
}

// NewReader constructs a Reader.
func NewReader(cfg ReaderConfig) *Reader {
	if cfg.LockRetryDelay <= 0 {
		cfg.LockRetryDelay = time.Second
	}
	if cfg.LockMaxDelay <= 0 {
		cfg.LockMaxDelay = 30 * time.Second
	}
	if cfg.LockMaxAttempts <= 0 {
		cfg.LockMaxAttempts = 6
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Reader{
		retryDelay:  cfg.LockRetryDelay,
		maxDelay:    cfg.LockMaxDelay,
		maxAttempts: cfg.LockMaxAttempts,
		logger:      cfg.Logger,
		open:        func(path string) (io.ReadCloser, error) { return os.Open(path) },
		isLocked:    isLockError,
	}
}

// Stream calls fn for every data row in order. The header row supplies the keys and
// is not passed to fn. A header-only or empty file yields no rows and no error.
// Returning an error from fn stops the stream with that error.
func (r *Reader) Stream(ctx context.Context, path string, fn func(Row) error) error {
	file, err := r.openWithRetry(ctx, path)
	if err != nil {
		return err
	}
	defer file.Close()

	decoded, err := decode(file)
	if err != nil {
		return &ReadError{Kind: ReadIO, Path: path, Err: err}
	}

	cr := csv.NewReader(decoded)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return &ReadError{Kind: ReadIO, Path: path, Err: fmt.Errorf("read header: %w", err)}
	}
	keys := normaliseHeader(header)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			if cbErr := fn(Row{Line: parseErr.Line, Err: parseErr}); cbErr != nil {
				return cbErr
			}
			continue
		}
		if err != nil {
			return &ReadError{Kind: ReadIO, Path: path, Err: err}
		}
		line, _ := cr.FieldPos(0)
		if cbErr := fn(Row{Line: line, Values: rowValues(keys, record)}); cbErr != nil {
			return cbErr
		}
	}
}

// ReadAll collects every row of the file.
func (r *Reader) ReadAll(ctx context.Context, path string) ([]Row, error) {
	var rows []Row
	err := r.Stream(ctx, path, func(row Row) error {
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Reader) openWithRetry(ctx context.Context, path string) (io.ReadCloser, error) {
	delay := r.retryDelay
	for attempt := 1; ; attempt++ {
		file, err := r.open(path)
		if err == nil {
			return file, nil
		}
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, &ReadError{Kind: ReadNotFound, Path: path, Attempts: attempt, Err: err}
		case !r.isLocked(err):
			return nil, &ReadError{Kind: ReadIO, Path: path, Attempts: attempt, Err: err}
		case attempt >= r.maxAttempts:
			return nil, &ReadError{Kind: ReadLocked, Path: path, Attempts: attempt, Err: err}
		}

		r.logger.Info("source file is locked, retrying",
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
		if delay > r.maxDelay {
			delay = r.maxDelay
		}
	}
}

// decode strips a UTF-8 or UTF-16 BOM and converts UTF-16 or Windows-1252 content to UTF-8.
// Without a BOM the whole content must be valid UTF-8 to be read as UTF-8; a single
// invalid byte anywhere switches the file to Windows-1252.
func decode(r io.Reader) (io.Reader, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var fallback encoding.Encoding = unicode.UTF8
	if !utf8.Valid(raw) {
		fallback = charmap.Windows1252
	}
	return transform.NewReader(bytes.NewReader(raw), unicode.BOMOverride(fallback.NewDecoder())), nil
}

func normaliseHeader(header []string) []string {
	keys := make([]string, len(header))
	for i, h := range header {
		keys[i] = norm.NFC.String(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}
	return keys
}

// rowValues pads short rows with empty cells and drops cells beyond the header.
func rowValues(keys, record []string) map[string]string {
	values := make(map[string]string, len(keys))
	for i, key := range keys {
		if key == "" {
			continue
		}
		if i < len(record) {
			values[key] = record[i]
		} else {
			values[key] = ""
		}
	}
	return values
}
