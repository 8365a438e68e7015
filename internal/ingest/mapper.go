package ingest

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/admission-sync/internal/models"
)

const (
	syntheticIDPrefix = "TXN-"
	syntheticIDSuffix = 9
	base36Alphabet    = "0123456789abcdefghijklmnopqrstuvwxyz"

	defaultYesNo = "No"
)

// ErrBlankRow marks a row whose cells are all empty.
var ErrBlankRow = errors.New("row has no values")

// RowMapper converts raw admissions rows into records.
type RowMapper struct {
	validate *validator.Validate
	now      func() time.Time
}

// NewRowMapper constructs a mapper. A nil validator gets a default instance.
func NewRowMapper(validate *validator.Validate) *RowMapper {
	if validate == nil {
		validate = validator.New()
	}
	return &RowMapper{validate: validate, now: time.Now}
}

// Map never fails: missing or malformed cells degrade to their defaults.
func (m *RowMapper) Map(raw map[string]string) models.AdmissionRecord {
	rec := models.AdmissionRecord{
		UploadDate:    textOr(raw, ColumnUploadDate, models.NotAvailable),
		DateOfPayment: textOr(raw, ColumnDateOfPayment, models.NotAvailable),
		TransactionID: textOr(raw, ColumnTransactionID, ""),
		FirstName:     textOr(raw, ColumnFirstName, ""),
		LastName:      textOr(raw, ColumnLastName, ""),
		College:       textOr(raw, ColumnCollege, ""),
		FeePaid:       textOr(raw, ColumnFeePaid, defaultYesNo),
		SemFee:        textOr(raw, ColumnSemFee, defaultYesNo),
		Gender:        textOr(raw, ColumnGender, ""),
		Fees:          ParseFees(Cell(raw, ColumnFees)),
		Year:          ParseYear(Cell(raw, ColumnYear)),
		Withdrawal:    textOr(raw, ColumnWithdrawal, ""),
	}
	if rec.TransactionID == "" {
		rec.TransactionID = m.SyntheticTransactionID()
	}
	return rec
}

// Validate rejects rows that cannot be stored as-is: blank rows and Yes/No cells
// holding anything other than a yes or no spelling.
func (m *RowMapper) Validate(raw map[string]string, rec models.AdmissionRecord) error {
	if isBlank(raw) {
		return ErrBlankRow
	}
	if err := m.validate.Struct(rec); err != nil {
		return fmt.Errorf("invalid admission row: %w", err)
	}
	return nil
}

// SyntheticTransactionID returns "TXN-<epoch millis>-<9 base36 chars>".
func (m *RowMapper) SyntheticTransactionID() string {
	var b strings.Builder
	b.WriteString(syntheticIDPrefix)
	b.WriteString(strconv.FormatInt(m.now().UnixMilli(), 10))
	b.WriteByte('-')
	radix := big.NewInt(int64(len(base36Alphabet)))
	for i := 0; i < syntheticIDSuffix; i++ {
		n, err := rand.Int(rand.Reader, radix)
		if err != nil {
			// crypto/rand does not fail on supported platforms; fall back to the clock.
			n = big.NewInt(time.Now().UnixNano() % int64(len(base36Alphabet)))
		}
		b.WriteByte(base36Alphabet[n.Int64()])
	}
	return b.String()
}

// ParseFees returns 0 for blank or "not paid" cells, otherwise the leading integer
// after thousands separators are removed.
func ParseFees(raw string) int64 {
	value := strings.TrimSpace(raw)
	if value == "" || strings.Contains(strings.ToLower(value), "not paid") {
		return 0
	}
	n, ok := leadingInt(strings.ReplaceAll(value, ",", ""))
	if !ok {
		return 0
	}
	return n
}

// ParseYear returns the leading integer of the cell, or the default year when there is none.
func ParseYear(raw string) int {
	n, ok := leadingInt(strings.TrimSpace(raw))
	if !ok || n == 0 {
		return models.DefaultAdmissionYear
	}
	return int(n)
}

// leadingInt parses an optional sign followed by digits, ignoring anything after them
// ("2025.0" is 2025, "12500 INR" is 12500).
func leadingInt(s string) (int64, bool) {
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digitsStart := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digitsStart {
		return 0, false
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func textOr(raw map[string]string, column, fallback string) string {
	if value := strings.TrimSpace(Cell(raw, column)); value != "" {
		return value
	}
	return fallback
}

// Cell looks the column up exactly, then case-insensitively for hand-edited headers.
func Cell(raw map[string]string, column string) string {
	if value, ok := raw[column]; ok {
		return value
	}
	for key, value := range raw {
		if strings.EqualFold(strings.TrimSpace(key), column) {
			return value
		}
	}
	return ""
}

func isBlank(raw map[string]string) bool {
	for _, value := range raw {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}
