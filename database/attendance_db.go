package database

import (
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// Querier abstracts *sql.DB and *sql.Tx for the raw aggregate queries.
type Querier interface {
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// DetectionCount is the number of automatically identified crops for one
// student within one session.
type DetectionCount struct {
	SessionID uint
	StudentID uint
	Count     int
}

// ListDetectionCounts aggregates automatic crop assignments per (student,
// session) for a class. When sessionIDs is non-empty the aggregation is
// restricted to those sessions. Manual overrides are intentionally not part
// of this query; they are applied on top by the attendance service.
func ListDetectionCounts(db Querier, classID uint, sessionIDs []uint) ([]DetectionCount, error) {
	queryBuilder := psql.Select("s.id", "fc.student_id", "COUNT(fc.id)").
		From("face_crops fc").
		Join("session_images si ON fc.image_id = si.id").
		Join("sessions s ON si.session_id = s.id").
		Where(sq.Eq{"s.class_id": classID}).
		Where("fc.student_id IS NOT NULL").
		Where(sq.Eq{"fc.identification_source": "automatic"}).
		GroupBy("s.id", "fc.student_id")

	if len(sessionIDs) > 0 {
		queryBuilder = queryBuilder.Where(sq.Eq{"s.id": sessionIDs})
	}

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL for ListDetectionCounts: %w", err)
	}

	rows, err := db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute ListDetectionCounts query: %w", err)
	}
	defer rows.Close()

	var counts []DetectionCount
	for rows.Next() {
		var dc DetectionCount
		if err := rows.Scan(&dc.SessionID, &dc.StudentID, &dc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan detection count row: %w", err)
		}
		counts = append(counts, dc)
	}
	return counts, rows.Err()
}

// CountAssignedCrops returns the number of crops currently assigned to a
// student, regardless of identification source.
func CountAssignedCrops(db Querier, studentID uint) (int, error) {
	queryBuilder := psql.Select("COUNT(id)").
		From("face_crops").
		Where(sq.Eq{"student_id": studentID})

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build SQL for CountAssignedCrops: %w", err)
	}

	var count int
	if err := db.QueryRow(sqlStr, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count assigned crops for student %d: %w", studentID, err)
	}
	return count, nil
}
