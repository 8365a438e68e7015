package ingest

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admission-sync/internal/models"
)

func fullRow() map[string]string {
	return map[string]string{
		ColumnUploadDate:    "03-06-2025",
		ColumnDateOfPayment: "02-06-2025",
		ColumnTransactionID: " TX-1001 ",
		ColumnFirstName:     " Asha ",
		ColumnLastName:      "Rao",
		ColumnCollege:       "  MIT  ",
		ColumnFeePaid:       "yes",
		ColumnSemFee:        "NO",
		ColumnGender:        "Female",
		ColumnFees:          "12,500",
		ColumnYear:          "2024",
		ColumnWithdrawal:    "",
	}
}

func TestRowMapperMapsFullRow(t *testing.T) {
	m := NewRowMapper(nil)

	rec := m.Map(fullRow())

	assert.Equal(t, "03-06-2025", rec.UploadDate)
	assert.Equal(t, "TX-1001", rec.TransactionID)
	assert.Equal(t, "Asha", rec.FirstName)
	assert.Equal(t, "MIT", rec.College)
	assert.Equal(t, "yes", rec.FeePaid)
	assert.Equal(t, "NO", rec.SemFee)
	assert.Equal(t, int64(12500), rec.Fees)
	assert.Equal(t, 2024, rec.Year)
	assert.Equal(t, "", rec.Withdrawal)
}

func TestRowMapperDefaults(t *testing.T) {
	m := NewRowMapper(nil)

	rec := m.Map(map[string]string{ColumnFirstName: "Ravi"})

	assert.Equal(t, models.NotAvailable, rec.UploadDate)
	assert.Equal(t, models.NotAvailable, rec.DateOfPayment)
	assert.Equal(t, "No", rec.FeePaid)
	assert.Equal(t, "No", rec.SemFee)
	assert.Equal(t, int64(0), rec.Fees)
	assert.Equal(t, 2025, rec.Year)
	assert.NotEmpty(t, rec.TransactionID)
}

func TestParseFees(t *testing.T) {
	cases := map[string]int64{
		"":             0,
		"   ":          0,
		"Not Paid":     0,
		"NOT PAID ":    0,
		"not paid yet": 0,
		"12,500":       12500,
		"1,00,000":     100000,
		"7500.75":      7500,
		"abc":          0,
		"-300":         -300,
	}
	for raw, want := range cases {
		assert.Equal(t, want, ParseFees(raw), "fees %q", raw)
	}
}

func TestParseYear(t *testing.T) {
	assert.Equal(t, 2025, ParseYear(""))
	assert.Equal(t, 2025, ParseYear("first year"))
	assert.Equal(t, 2025, ParseYear("0"))
	assert.Equal(t, 2023, ParseYear(" 2023 "))
	assert.Equal(t, 2024, ParseYear("2024.0"))
}

func TestSyntheticTransactionIDsAreDistinct(t *testing.T) {
	m := NewRowMapper(nil)
	frozen := time.UnixMilli(1717400000000)
	m.now = func() time.Time { return frozen }

	pattern := regexp.MustCompile(`^TXN-1717400000000-[0-9a-z]{9}$`)
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		rec := m.Map(map[string]string{ColumnTransactionID: "   ", ColumnFirstName: "x"})
		require.Regexp(t, pattern, rec.TransactionID)
		seen[rec.TransactionID] = struct{}{}
	}
	assert.Len(t, seen, 100)
}

func TestRowMapperCollegeTrimGroupsTogether(t *testing.T) {
	m := NewRowMapper(nil)
	colleges := map[string]int{}
	for _, raw := range []string{"  MIT  ", "MIT", " MIT"} {
		rec := m.Map(map[string]string{ColumnCollege: raw})
		colleges[rec.College]++
	}
	assert.Equal(t, map[string]int{"MIT": 3}, colleges)
}

func TestRowMapperHeaderCaseFallback(t *testing.T) {
	m := NewRowMapper(nil)

	rec := m.Map(map[string]string{"transaction ID": "TX-9", "college": "IIT"})

	assert.Equal(t, "TX-9", rec.TransactionID)
	assert.Equal(t, "IIT", rec.College)
}

func TestRowMapperValidate(t *testing.T) {
	m := NewRowMapper(nil)

	valid := fullRow()
	require.NoError(t, m.Validate(valid, m.Map(valid)))

	badEnum := fullRow()
	badEnum[ColumnSemFee] = "Partially"
	assert.Error(t, m.Validate(badEnum, m.Map(badEnum)))

	blank := map[string]string{ColumnFirstName: " ", ColumnCollege: ""}
	assert.ErrorIs(t, m.Validate(blank, m.Map(blank)), ErrBlankRow)
}
