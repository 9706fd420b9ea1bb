package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/byerim/brandshield/internal/models"
)

type Store struct {
	db *sqlx.DB
}

type Config struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

func New(cfg Config) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) CreateThreat(ctx context.Context, threat *models.Threat) error {
	query := `
		INSERT INTO threats (id, brand, threat_type, severity, platform, detected_url,
			infringer_username, confidence, evidence, status, notes, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	threat.ID = uuid.New()
	threat.DetectedAt = time.Now()
	if threat.Status == "" {
		threat.Status = models.ThreatStatusNew
	}
	if threat.Severity == "" {
		threat.Severity = models.SeverityMedium
	}

	_, err := s.db.ExecContext(ctx, query,
		threat.ID,
		threat.Brand,
		threat.ThreatType,
		threat.Severity,
		threat.Platform,
		threat.DetectedURL,
		threat.InfringerUsername,
		threat.Confidence,
		threat.Evidence,
		threat.Status,
		threat.Notes,
		threat.DetectedAt,
	)
	return err
}

func (s *Store) GetThreat(ctx context.Context, id uuid.UUID) (*models.Threat, error) {
	var threat models.Threat
	query := `SELECT * FROM threats WHERE id = $1`
	err := s.db.GetContext(ctx, &threat, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &threat, err
}

type ListThreatFilters struct {
	Brand      *string
	ThreatType *models.ThreatType
	Severity   *models.Severity
	Status     *models.ThreatStatus
	Platform   *string
	Limit      int
	Offset     int
}

func (s *Store) ListThreats(ctx context.Context, filters ListThreatFilters) ([]models.Threat, int, error) {
	baseQuery := `FROM threats WHERE 1=1`
	args := make([]interface{}, 0)
	argIdx := 1

	if filters.Brand != nil {
		baseQuery += fmt.Sprintf(" AND brand = $%d", argIdx)
		args = append(args, *filters.Brand)
		argIdx++
	}
	if filters.ThreatType != nil {
		baseQuery += fmt.Sprintf(" AND threat_type = $%d", argIdx)
		args = append(args, *filters.ThreatType)
		argIdx++
	}
	if filters.Severity != nil {
		baseQuery += fmt.Sprintf(" AND severity = $%d", argIdx)
		args = append(args, *filters.Severity)
		argIdx++
	}
	if filters.Status != nil {
		baseQuery += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, *filters.Status)
		argIdx++
	}
	if filters.Platform != nil {
		baseQuery += fmt.Sprintf(" AND platform = $%d", argIdx)
		args = append(args, *filters.Platform)
		argIdx++
	}

	var total int
	countQuery := "SELECT COUNT(*) " + baseQuery
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	selectQuery := "SELECT * " + baseQuery + " ORDER BY detected_at DESC"
	if filters.Limit > 0 {
		selectQuery += fmt.Sprintf(" LIMIT %d", filters.Limit)
	}
	if filters.Offset > 0 {
		selectQuery += fmt.Sprintf(" OFFSET %d", filters.Offset)
	}

	var threats []models.Threat
	if err := s.db.SelectContext(ctx, &threats, selectQuery, args...); err != nil {
		return nil, 0, err
	}

	return threats, total, nil
}

func (s *Store) UpdateThreatStatus(ctx context.Context, id uuid.UUID, status models.ThreatStatus, notes string) error {
	query := `UPDATE threats SET status = $1`
	args := []interface{}{status}
	argIdx := 2

	if notes != "" {
		query += fmt.Sprintf(", notes = $%d", argIdx)
		args = append(args, notes)
		argIdx++
	}
	if status == models.ThreatStatusResolved {
		query += fmt.Sprintf(", resolved_at = $%d", argIdx)
		args = append(args, time.Now())
		argIdx++
	}

	query += fmt.Sprintf(" WHERE id = $%d", argIdx)
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ResolveStaleThreats auto-resolves threats that have been sitting in
// status new since before the cutoff. Returns the number resolved.
func (s *Store) ResolveStaleThreats(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		UPDATE threats
		SET status = $1, resolved_at = $2
		WHERE status = $3 AND detected_at < $4
	`
	res, err := s.db.ExecContext(ctx, query,
		models.ThreatStatusResolved, time.Now(), models.ThreatStatusNew, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// URLTracked reports whether a URL already exists as a threat or a
// suspicious account profile. Used for cross-scan dedup.
func (s *Store) URLTracked(ctx context.Context, url string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM threats WHERE detected_url = $1
			UNION
			SELECT 1 FROM suspicious_accounts WHERE profile_url = $1
		)
	`
	err := s.db.GetContext(ctx, &exists, query, url)
	return exists, err
}

func (s *Store) ThreatsSince(ctx context.Context, since time.Time) ([]models.Threat, error) {
	query := `SELECT * FROM threats WHERE detected_at >= $1 ORDER BY severity DESC, confidence DESC`
	var threats []models.Threat
	err := s.db.SelectContext(ctx, &threats, query, since)
	return threats, err
}

// ActiveThreats lists every threat that is not resolved or ignored.
func (s *Store) ActiveThreats(ctx context.Context) ([]models.Threat, error) {
	query := `SELECT * FROM threats WHERE status NOT IN ($1, $2) ORDER BY severity DESC`
	var threats []models.Threat
	err := s.db.SelectContext(ctx, &threats, query,
		models.ThreatStatusResolved, models.ThreatStatusIgnored)
	return threats, err
}

func (s *Store) CountThreatsByStatus(ctx context.Context, status models.ThreatStatus) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM threats WHERE status = $1`, status)
	return count, err
}

// ActiveSeverityCounts breaks active threats down by severity.
func (s *Store) ActiveSeverityCounts(ctx context.Context) (map[models.Severity]int, error) {
	query := `
		SELECT severity, COUNT(*) as count
		FROM threats
		WHERE status NOT IN ($1, $2)
		GROUP BY severity
	`
	rows, err := s.db.QueryContext(ctx, query,
		models.ThreatStatusResolved, models.ThreatStatusIgnored)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[models.Severity]int{
		models.SeverityCritical: 0,
		models.SeverityHigh:     0,
		models.SeverityMedium:   0,
		models.SeverityLow:      0,
	}
	for rows.Next() {
		var severity models.Severity
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, err
		}
		counts[severity] = count
	}
	return counts, rows.Err()
}

// ActiveBrandCounts breaks active threats down by brand.
func (s *Store) ActiveBrandCounts(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT brand, COUNT(*) as count
		FROM threats
		WHERE status NOT IN ($1, $2)
		GROUP BY brand
	`
	rows, err := s.db.QueryContext(ctx, query,
		models.ThreatStatusResolved, models.ThreatStatusIgnored)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var brand string
		var count int
		if err := rows.Scan(&brand, &count); err != nil {
			return nil, err
		}
		counts[brand] = count
	}
	return counts, rows.Err()
}

func (s *Store) CreateSuspect(ctx context.Context, suspect *models.SuspiciousAccount) error {
	query := `
		INSERT INTO suspicious_accounts (id, brand, platform, username, profile_url,
			display_name, bio_text, follower_count, post_count, risk_score,
			detection_reasons, status, detected_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	suspect.ID = uuid.New()
	suspect.DetectedAt = time.Now()
	suspect.UpdatedAt = suspect.DetectedAt
	if suspect.Status == "" {
		suspect.Status = models.SuspectStatusSuspected
	}

	_, err := s.db.ExecContext(ctx, query,
		suspect.ID,
		suspect.Brand,
		suspect.Platform,
		suspect.Username,
		suspect.ProfileURL,
		suspect.DisplayName,
		suspect.BioText,
		suspect.FollowerCount,
		suspect.PostCount,
		suspect.RiskScore,
		suspect.DetectionReasons,
		suspect.Status,
		suspect.DetectedAt,
		suspect.UpdatedAt,
	)
	return err
}

func (s *Store) GetSuspect(ctx context.Context, id uuid.UUID) (*models.SuspiciousAccount, error) {
	var suspect models.SuspiciousAccount
	query := `SELECT * FROM suspicious_accounts WHERE id = $1`
	err := s.db.GetContext(ctx, &suspect, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &suspect, err
}

type ListSuspectFilters struct {
	Brand    *string
	Platform *string
	Status   *models.SuspectStatus
	Limit    int
	Offset   int
}

func (s *Store) ListSuspects(ctx context.Context, filters ListSuspectFilters) ([]models.SuspiciousAccount, int, error) {
	baseQuery := `FROM suspicious_accounts WHERE 1=1`
	args := make([]interface{}, 0)
	argIdx := 1

	if filters.Brand != nil {
		baseQuery += fmt.Sprintf(" AND brand = $%d", argIdx)
		args = append(args, *filters.Brand)
		argIdx++
	}
	if filters.Platform != nil {
		baseQuery += fmt.Sprintf(" AND platform = $%d", argIdx)
		args = append(args, *filters.Platform)
		argIdx++
	}
	if filters.Status != nil {
		baseQuery += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, *filters.Status)
		argIdx++
	}

	var total int
	countQuery := "SELECT COUNT(*) " + baseQuery
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	selectQuery := "SELECT * " + baseQuery + " ORDER BY risk_score DESC, detected_at DESC"
	if filters.Limit > 0 {
		selectQuery += fmt.Sprintf(" LIMIT %d", filters.Limit)
	}
	if filters.Offset > 0 {
		selectQuery += fmt.Sprintf(" OFFSET %d", filters.Offset)
	}

	var suspects []models.SuspiciousAccount
	if err := s.db.SelectContext(ctx, &suspects, selectQuery, args...); err != nil {
		return nil, 0, err
	}

	return suspects, total, nil
}

func (s *Store) UpdateSuspectStatus(ctx context.Context, id uuid.UUID, status models.SuspectStatus) error {
	query := `UPDATE suspicious_accounts SET status = $1, updated_at = $2 WHERE id = $3`
	res, err := s.db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SuspectedAccounts lists open suspects ordered by risk.
func (s *Store) SuspectedAccounts(ctx context.Context) ([]models.SuspiciousAccount, error) {
	query := `SELECT * FROM suspicious_accounts WHERE status = $1 ORDER BY risk_score DESC`
	var suspects []models.SuspiciousAccount
	err := s.db.SelectContext(ctx, &suspects, query, models.SuspectStatusSuspected)
	return suspects, err
}

func (s *Store) CreateScan(ctx context.Context, scan *models.ScanRecord) error {
	query := `
		INSERT INTO scan_history (id, scan_type, brand, platform, items_scanned,
			threats_found, execution_time_seconds, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	scan.ID = uuid.New()
	scan.StartedAt = time.Now()
	if scan.Status == "" {
		scan.Status = models.ScanStatusRunning
	}

	_, err := s.db.ExecContext(ctx, query,
		scan.ID,
		scan.ScanType,
		scan.Brand,
		scan.Platform,
		scan.ItemsScanned,
		scan.ThreatsFound,
		scan.ExecutionSeconds,
		scan.Status,
		scan.StartedAt,
	)
	return err
}

func (s *Store) GetScan(ctx context.Context, id uuid.UUID) (*models.ScanRecord, error) {
	var scan models.ScanRecord
	query := `SELECT * FROM scan_history WHERE id = $1`
	err := s.db.GetContext(ctx, &scan, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &scan, err
}

func (s *Store) CompleteScan(ctx context.Context, id uuid.UUID, itemsScanned, threatsFound int, execSeconds float64) error {
	query := `
		UPDATE scan_history
		SET status = $1, items_scanned = $2, threats_found = $3,
			execution_time_seconds = $4, completed_at = $5
		WHERE id = $6
	`
	_, err := s.db.ExecContext(ctx, query,
		models.ScanStatusCompleted, itemsScanned, threatsFound, execSeconds, time.Now(), id)
	return err
}

func (s *Store) FailScan(ctx context.Context, id uuid.UUID, message string, execSeconds float64) error {
	query := `
		UPDATE scan_history
		SET status = $1, error_message = $2, execution_time_seconds = $3, completed_at = $4
		WHERE id = $5
	`
	_, err := s.db.ExecContext(ctx, query,
		models.ScanStatusFailed, message, execSeconds, time.Now(), id)
	return err
}

func (s *Store) ListScans(ctx context.Context, limit int) ([]models.ScanRecord, error) {
	query := `SELECT * FROM scan_history ORDER BY started_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	var scans []models.ScanRecord
	err := s.db.SelectContext(ctx, &scans, query)
	return scans, err
}

func (s *Store) ScansSince(ctx context.Context, since time.Time) ([]models.ScanRecord, error) {
	query := `SELECT * FROM scan_history WHERE started_at >= $1 ORDER BY started_at DESC`
	var scans []models.ScanRecord
	err := s.db.SelectContext(ctx, &scans, query, since)
	return scans, err
}

func (s *Store) CreateNotice(ctx context.Context, notice *models.DMCANotice) error {
	query := `
		INSERT INTO dmca_notices (id, threat_id, notice_type, recipient_email,
			recipient_platform, subject_line, body, pdf_path, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	notice.ID = uuid.New()
	notice.CreatedAt = time.Now()
	if notice.Status == "" {
		notice.Status = models.NoticeStatusDraft
	}

	_, err := s.db.ExecContext(ctx, query,
		notice.ID,
		notice.ThreatID,
		notice.NoticeType,
		notice.RecipientEmail,
		notice.RecipientPlatform,
		notice.SubjectLine,
		notice.Body,
		notice.PDFPath,
		notice.Status,
		notice.CreatedAt,
	)
	return err
}

func (s *Store) GetNotice(ctx context.Context, id uuid.UUID) (*models.DMCANotice, error) {
	var notice models.DMCANotice
	query := `SELECT * FROM dmca_notices WHERE id = $1`
	err := s.db.GetContext(ctx, &notice, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &notice, err
}

func (s *Store) ListNotices(ctx context.Context, threatID *uuid.UUID) ([]models.DMCANotice, error) {
	query := `SELECT * FROM dmca_notices WHERE 1=1`
	args := make([]interface{}, 0)
	if threatID != nil {
		query += " AND threat_id = $1"
		args = append(args, *threatID)
	}
	query += " ORDER BY created_at DESC"

	var notices []models.DMCANotice
	err := s.db.SelectContext(ctx, &notices, query, args...)
	return notices, err
}

func (s *Store) MarkNoticeSent(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE dmca_notices SET status = $1, sent_at = $2 WHERE id = $3`
	res, err := s.db.ExecContext(ctx, query, models.NoticeStatusSent, time.Now(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) NoticesSince(ctx context.Context, since time.Time) ([]models.DMCANotice, error) {
	query := `SELECT * FROM dmca_notices WHERE created_at >= $1 ORDER BY created_at DESC`
	var notices []models.DMCANotice
	err := s.db.SelectContext(ctx, &notices, query, since)
	return notices, err
}

type DashboardCounts struct {
	ActiveThreats  int `json:"active_threats"`
	NewThreats     int `json:"new_threats"`
	OpenSuspects   int `json:"open_suspects"`
	ScansCompleted int `json:"scans_completed"`
}

func (s *Store) GetDashboardCounts(ctx context.Context) (*DashboardCounts, error) {
	counts := &DashboardCounts{}

	err := s.db.GetContext(ctx, &counts.ActiveThreats,
		`SELECT COUNT(*) FROM threats WHERE status NOT IN ($1, $2)`,
		models.ThreatStatusResolved, models.ThreatStatusIgnored)
	if err != nil {
		return nil, err
	}

	err = s.db.GetContext(ctx, &counts.NewThreats,
		`SELECT COUNT(*) FROM threats WHERE status = $1`, models.ThreatStatusNew)
	if err != nil {
		return nil, err
	}

	err = s.db.GetContext(ctx, &counts.OpenSuspects,
		`SELECT COUNT(*) FROM suspicious_accounts WHERE status = $1`,
		models.SuspectStatusSuspected)
	if err != nil {
		return nil, err
	}

	err = s.db.GetContext(ctx, &counts.ScansCompleted,
		`SELECT COUNT(*) FROM scan_history WHERE status = $1`, models.ScanStatusCompleted)
	if err != nil {
		return nil, err
	}

	return counts, nil
}
