package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/admission-sync/internal/models"
)

const admissionColumns = `id, upload_date, date_of_payment, transaction_id, first_name, last_name, college, fee_paid, sem_fee, gender, fees, year, withdrawal, created_at, updated_at`

const insertAdmissionQuery = `INSERT INTO admission_records (` + admissionColumns + `) VALUES (:id, :upload_date, :date_of_payment, :transaction_id, :first_name, :last_name, :college, :fee_paid, :sem_fee, :gender, :fees, :year, :withdrawal, :created_at, :updated_at)`

// AdmissionWriter is the write half of the admissions store, shared by the plain
// and the transactional replace paths.
type AdmissionWriter interface {
	DeleteAll(ctx context.Context) (int64, error)
	InsertChunk(ctx context.Context, records []models.AdmissionRecord) (int, error)
}

// AdmissionRepository stores admission records in Postgres.
type AdmissionRepository struct {
	db *sqlx.DB
}

// NewAdmissionRepository creates a new AdmissionRepository.
func NewAdmissionRepository(db *sqlx.DB) *AdmissionRepository {
	return &AdmissionRepository{db: db}
}

// Ping checks store connectivity.
func (r *AdmissionRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// DeleteAll removes every admission record and returns how many were removed.
func (r *AdmissionRepository) DeleteAll(ctx context.Context) (int64, error) {
	return deleteAllAdmissions(ctx, r.db)
}

// InsertChunk inserts records with one multi-row statement. The chunk succeeds or
// fails as a whole.
func (r *AdmissionRepository) InsertChunk(ctx context.Context, records []models.AdmissionRecord) (int, error) {
	return insertAdmissions(ctx, r.db, records)
}

// WithinTransaction runs fn against a writer bound to one transaction. Chunks
// inserted through the writer run under their own savepoint so a failing chunk
// is rolled back alone and the rest still commit.
func (r *AdmissionRepository) WithinTransaction(ctx context.Context, fn func(AdmissionWriter) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin admissions tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&admissionTxWriter{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit admissions tx: %w", err)
	}
	return nil
}

type admissionTxWriter struct {
	tx     *sqlx.Tx
	chunks int
}

func (w *admissionTxWriter) DeleteAll(ctx context.Context) (int64, error) {
	return deleteAllAdmissions(ctx, w.tx)
}

func (w *admissionTxWriter) InsertChunk(ctx context.Context, records []models.AdmissionRecord) (int, error) {
	w.chunks++
	savepoint := fmt.Sprintf("admission_chunk_%d", w.chunks)
	if _, err := w.tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
		return 0, fmt.Errorf("savepoint %s: %w", savepoint, err)
	}
	inserted, err := insertAdmissions(ctx, w.tx, records)
	if err != nil {
		// The chunk context may already be done; the rollback must still reach the server.
		if _, rbErr := w.tx.ExecContext(context.WithoutCancel(ctx), "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
			return 0, fmt.Errorf("%w (rollback to savepoint: %v)", err, rbErr)
		}
		return 0, err
	}
	if _, err := w.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
		return 0, fmt.Errorf("release savepoint %s: %w", savepoint, err)
	}
	return inserted, nil
}

func deleteAllAdmissions(ctx context.Context, exec sqlx.ExecerContext) (int64, error) {
	res, err := exec.ExecContext(ctx, `DELETE FROM admission_records`)
	if err != nil {
		return 0, fmt.Errorf("delete admissions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}

func insertAdmissions(ctx context.Context, exec sqlx.ExtContext, records []models.AdmissionRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	payload := make([]models.AdmissionRecord, len(records))
	for i, rec := range records {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		rec.UpdatedAt = now
		payload[i] = rec
	}

	res, err := sqlx.NamedExecContext(ctx, exec, insertAdmissionQuery, payload)
	if err != nil {
		return 0, fmt.Errorf("insert admissions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return len(payload), nil
	}
	return int(affected), nil
}

// List returns records matching the filter with the total count. A zero page size
// returns every matching record.
func (r *AdmissionRepository) List(ctx context.Context, filter models.AdmissionFilter) ([]models.AdmissionRecord, int, error) {
	baseQuery := `FROM admission_records WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.College != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(TRIM(college)) = LOWER(TRIM($%d))", len(args)+1))
		args = append(args, filter.College)
	}
	if filter.Search != "" {
		n := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(first_name ILIKE $%d OR last_name ILIKE $%d OR transaction_id ILIKE $%d OR college ILIKE $%d)", n, n, n, n))
		args = append(args, "%"+escapeLike(strings.TrimSpace(filter.Search))+"%")
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at, transaction_id", admissionColumns, baseQuery)
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		listQuery += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.PageSize, (page-1)*filter.PageSize)
	}

	records := []models.AdmissionRecord{}
	if err := r.db.SelectContext(ctx, &records, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list admissions: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count admissions: %w", err)
	}
	return records, total, nil
}

// Count returns the number of stored records.
func (r *AdmissionRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM admission_records`); err != nil {
		return 0, fmt.Errorf("count admissions: %w", err)
	}
	return total, nil
}

// Colleges returns the distinct trimmed, non-empty college names.
func (r *AdmissionRepository) Colleges(ctx context.Context) ([]string, error) {
	colleges := []string{}
	const query = `SELECT DISTINCT TRIM(college) AS college FROM admission_records WHERE TRIM(college) <> '' ORDER BY college`
	if err := r.db.SelectContext(ctx, &colleges, query); err != nil {
		return nil, fmt.Errorf("distinct colleges: %w", err)
	}
	return colleges, nil
}

// CountByCollege counts admissions per college, largest first.
func (r *AdmissionRepository) CountByCollege(ctx context.Context) ([]models.CollegeCount, error) {
	return r.countByCollege(ctx, "count by college", `COUNT(*)`, `TRIM(college) <> ''`)
}

// FeePaidByCollege counts records whose 10K cell is a yes in any casing.
func (r *AdmissionRepository) FeePaidByCollege(ctx context.Context) ([]models.CollegeCount, error) {
	return r.countByCollege(ctx, "count fee paid", `COUNT(*)`, `TRIM(college) <> '' AND LOWER(TRIM(fee_paid)) = 'yes'`)
}

// FemaleByCollege counts records whose gender is female in any casing.
func (r *AdmissionRepository) FemaleByCollege(ctx context.Context) ([]models.CollegeCount, error) {
	return r.countByCollege(ctx, "count female", `COUNT(*)`, `TRIM(college) <> '' AND LOWER(TRIM(gender)) = 'female'`)
}

// WithdrawalsByCollege returns every college with its count of withdrawn records,
// including colleges with none.
func (r *AdmissionRepository) WithdrawalsByCollege(ctx context.Context) ([]models.CollegeCount, error) {
	return r.countByCollege(ctx, "count withdrawals", `COUNT(*) FILTER (WHERE LOWER(TRIM(withdrawal)) = 'withdrawn')`, `TRIM(college) <> ''`)
}

func (r *AdmissionRepository) countByCollege(ctx context.Context, op, aggregate, where string) ([]models.CollegeCount, error) {
	query := fmt.Sprintf(`SELECT TRIM(college) AS college, %s AS count FROM admission_records WHERE %s GROUP BY TRIM(college) ORDER BY count DESC, college`, aggregate, where)
	counts := []models.CollegeCount{}
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return counts, nil
}

// SemFeePaidByCollege counts, per college, the records whose semester fee is a yes in
// any casing. The dashboard reads the count under the fees key.
func (r *AdmissionRepository) SemFeePaidByCollege(ctx context.Context) ([]models.CollegeFees, error) {
	const query = `SELECT TRIM(college) AS college, COUNT(*) AS fees FROM admission_records WHERE TRIM(college) <> '' AND LOWER(TRIM(sem_fee)) = 'yes' GROUP BY TRIM(college) ORDER BY fees DESC, college`
	totals := []models.CollegeFees{}
	if err := r.db.SelectContext(ctx, &totals, query); err != nil {
		return nil, fmt.Errorf("count sem fee paid: %w", err)
	}
	return totals, nil
}

// CollegeUploads returns the upload date cell of every record with a college.
func (r *AdmissionRepository) CollegeUploads(ctx context.Context) ([]models.CollegeUpload, error) {
	const query = `SELECT TRIM(college) AS college, upload_date FROM admission_records WHERE TRIM(college) <> ''`
	uploads := []models.CollegeUpload{}
	if err := r.db.SelectContext(ctx, &uploads, query); err != nil {
		return nil, fmt.Errorf("college uploads: %w", err)
	}
	return uploads, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
