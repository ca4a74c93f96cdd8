package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"securekyc/internal/kyc/models"
	id "securekyc/pkg/domain"
	"securekyc/pkg/platform/sentinel"
	txcontext "securekyc/pkg/platform/tx"
)

// PostgresStore persists submissions in kyc_records. Every method joins a
// transaction carried in the context.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const submissionColumns = `
	k.id, k.user_id, k.name, k.aadhaar_number, k.district, k.age,
	k.risk_score, k.status, k.ocr_aadhaar_found, k.ocr_name_found, k.face_detected,
	k.ocr_flags, k.reasons, k.district_risk, k.attempt_number, k.submission_date`

func (s *PostgresStore) Create(ctx context.Context, sub *models.Submission) error {
	reasons, err := encodeReasons(sub.Reasons)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO kyc_records (
			id, user_id, name, aadhaar_number, district, age,
			risk_score, status, ocr_aadhaar_found, ocr_name_found, face_detected,
			ocr_flags, reasons, district_risk, attempt_number, submission_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(sub.ID),
		uuid.UUID(sub.UserID),
		sub.Applicant.Name,
		sub.Applicant.AadhaarNumber,
		sub.Applicant.District,
		sub.Applicant.Age,
		sub.RiskScore,
		string(sub.Status),
		sub.Facts.AadhaarFound,
		sub.Facts.NameFound,
		sub.Facts.FaceDetected,
		sub.Facts.Flags,
		reasons,
		sub.DistrictRisk,
		sub.AttemptNumber,
		sub.SubmissionDate,
	)
	if err != nil {
		return fmt.Errorf("insert kyc record: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of one record owned by sub.UserID.
func (s *PostgresStore) Update(ctx context.Context, sub *models.Submission) error {
	reasons, err := encodeReasons(sub.Reasons)
	if err != nil {
		return err
	}

	query := `
		UPDATE kyc_records SET
			name = $3, aadhaar_number = $4, district = $5, age = $6,
			risk_score = $7, status = $8,
			ocr_aadhaar_found = $9, ocr_name_found = $10, face_detected = $11, ocr_flags = $12,
			reasons = $13, district_risk = $14, attempt_number = $15, submission_date = $16
		WHERE id = $1 AND user_id = $2
	`
	res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(sub.ID),
		uuid.UUID(sub.UserID),
		sub.Applicant.Name,
		sub.Applicant.AadhaarNumber,
		sub.Applicant.District,
		sub.Applicant.Age,
		sub.RiskScore,
		string(sub.Status),
		sub.Facts.AadhaarFound,
		sub.Facts.NameFound,
		sub.Facts.FaceDetected,
		sub.Facts.Flags,
		reasons,
		sub.DistrictRisk,
		sub.AttemptNumber,
		sub.SubmissionDate,
	)
	if err != nil {
		return fmt.Errorf("update kyc record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update kyc record: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("submission %s: %w", sub.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID, status *models.Status) ([]*models.Submission, error) {
	query := `SELECT ` + submissionColumns + `
		FROM kyc_records k
		WHERE k.user_id = $1 AND ($2::text IS NULL OR k.status = $2)
		ORDER BY k.submission_date DESC, k.id`

	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, uuid.UUID(userID), statusArg(status))
	if err != nil {
		return nil, fmt.Errorf("query kyc records: %w", err)
	}
	defer rows.Close()

	out := []*models.Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kyc records: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListAllWithOwner(ctx context.Context, status *models.Status) ([]models.OwnedSubmission, error) {
	query := `SELECT ` + submissionColumns + `, u.email
		FROM kyc_records k
		JOIN users u ON u.id = k.user_id
		WHERE ($1::text IS NULL OR k.status = $1)
		ORDER BY k.submission_date DESC, k.id`

	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, statusArg(status))
	if err != nil {
		return nil, fmt.Errorf("query kyc records with owner: %w", err)
	}
	defer rows.Close()

	out := []models.OwnedSubmission{}
	for rows.Next() {
		var email string
		sub, err := scanSubmission(rows, &email)
		if err != nil {
			return nil, err
		}
		out = append(out, models.OwnedSubmission{Submission: *sub, OwnerEmail: email})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kyc records with owner: %w", err)
	}
	return out, nil
}

func scanSubmission(rows *sql.Rows, extra ...any) (*models.Submission, error) {
	var (
		sub       models.Submission
		subID     uuid.UUID
		userID    uuid.UUID
		status    string
		flags     sql.NullString
		reasonsJS []byte
	)
	dest := []any{
		&subID, &userID,
		&sub.Applicant.Name, &sub.Applicant.AadhaarNumber, &sub.Applicant.District, &sub.Applicant.Age,
		&sub.RiskScore, &status,
		&sub.Facts.AadhaarFound, &sub.Facts.NameFound, &sub.Facts.FaceDetected,
		&flags, &reasonsJS, &sub.DistrictRisk, &sub.AttemptNumber, &sub.SubmissionDate,
	}
	if err := rows.Scan(append(dest, extra...)...); err != nil {
		return nil, fmt.Errorf("scan kyc record: %w", err)
	}

	sub.ID = id.SubmissionID(subID)
	sub.UserID = id.UserID(userID)
	sub.Status = models.Status(status)
	if flags.Valid {
		sub.Facts.Flags = &flags.String
	}
	if err := json.Unmarshal(reasonsJS, &sub.Reasons); err != nil {
		return nil, fmt.Errorf("decode reasons: %w", err)
	}
	return &sub, nil
}

// encodeReasons returns JSON text; lib/pq would send []byte as bytea.
func encodeReasons(reasons []string) (string, error) {
	if reasons == nil {
		reasons = []string{}
	}
	b, err := json.Marshal(reasons)
	if err != nil {
		return "", fmt.Errorf("encode reasons: %w", err)
	}
	return string(b), nil
}

func statusArg(status *models.Status) any {
	if status == nil {
		return nil
	}
	return string(*status)
}
