// Package ingest turns the spreadsheet-maintained CSV files into records and
// detects when those files change.
package ingest

// Admissions file headers. These are the only place the spreadsheet's column
// names appear; everything downstream uses AdmissionRecord fields.
const (
	ColumnUploadDate    = "Upload date"
	ColumnDateOfPayment = "Date of payment"
	ColumnTransactionID = "Transaction id"
	ColumnFirstName     = "First Name"
	ColumnLastName      = "Last Name"
	ColumnCollege       = "College"
	ColumnFeePaid       = "10K"
	ColumnSemFee        = "Sem Fee"
	ColumnGender        = "Gender"
	ColumnFees          = "Fees"
	ColumnYear          = "Year"
	ColumnWithdrawal    = "Withdrawal"
)

// Admin users file headers.
const (
	ColumnAdminEmail    = "Email id"
	ColumnAdminPassword = "Password"
	ColumnAdminRole     = "Admins"
)

// AdmissionColumns lists the admissions headers in spreadsheet order.
var AdmissionColumns = []string{
	ColumnUploadDate,
	ColumnDateOfPayment,
	ColumnTransactionID,
	ColumnFirstName,
	ColumnLastName,
	ColumnCollege,
	ColumnFeePaid,
	ColumnSemFee,
	ColumnGender,
	ColumnFees,
	ColumnYear,
	ColumnWithdrawal,
}
