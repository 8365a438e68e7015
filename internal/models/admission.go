package models

import "time"

// DefaultAdmissionYear applies when the Year cell is blank or not a number.
const DefaultAdmissionYear = 2025

// NotAvailable is stored for blank date cells.
const NotAvailable = "N/A"

// AdmissionRecord is one student admission row as persisted after a sync pass.
// Yes/No fields keep the casing found in the source and are compared case-insensitively on read.
type AdmissionRecord struct {
	ID            string    `db:"id" json:"id"`
	UploadDate    string    `db:"upload_date" json:"uploadDate"`
	DateOfPayment string    `db:"date_of_payment" json:"dateOfPayment"`
	TransactionID string    `db:"transaction_id" json:"transactionId" validate:"required"`
	FirstName     string    `db:"first_name" json:"firstName"`
	LastName      string    `db:"last_name" json:"lastName"`
	College       string    `db:"college" json:"college"`
	FeePaid       string    `db:"fee_paid" json:"feePaid" validate:"oneof=Yes No yes no YES NO"`
	SemFee        string    `db:"sem_fee" json:"semFee" validate:"oneof=Yes No yes no YES NO"`
	Gender        string    `db:"gender" json:"gender"`
	Fees          int64     `db:"fees" json:"fees"`
	Year          int       `db:"year" json:"year"`
	Withdrawal    string    `db:"withdrawal" json:"withdrawal"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// AdmissionFilter narrows record listings.
type AdmissionFilter struct {
	Search   string
	College  string
	Page     int
	PageSize int
}

// CollegeCount is a per-college aggregate.
type CollegeCount struct {
	College string `db:"college" json:"college"`
	Count   int    `db:"count" json:"count"`
}

// CollegeUpload pairs a trimmed college with a raw upload date cell.
type CollegeUpload struct {
	College    string `db:"college"`
	UploadDate string `db:"upload_date"`
}

// CollegeFees is a per-college fee total.
type CollegeFees struct {
	College string `db:"college" json:"college"`
	Fees    int64  `db:"fees" json:"fees"`
}

// FillingColleges splits colleges by recent upload activity.
type FillingColleges struct {
	FastFillingColleges []string `json:"fastFillingColleges"`
	SlowFillingColleges []string `json:"slowFillingColleges"`
}
