package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"waterwise/internal/logger"
	"waterwise/internal/models"

	_ "github.com/lib/pq"
)

// Columns is the positional layout of a water_tests row. InsertValues must
// produce values in exactly this order.
var Columns = []string{
	"location", "test_date", "ph_level", "turbidity", "temperature",
	"electrical_conductivity", "dissolved_oxygen", "salinity",
	"total_dissolved_solids", "hardness", "alkalinity", "chlorine",
	"total_coliforms", "e_coli", "water_source", "additional_notes",
	"prediction",
}

var insertQuery = buildInsert()

func buildInsert() string {
	placeholders := make([]string, len(Columns))
	for i := range Columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO water_tests (%s) VALUES (%s) RETURNING id",
		strings.Join(Columns, ", "), strings.Join(placeholders, ", "))
}

// PoolConfig tunes the connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open opens the database connection with pool settings and verifies it.
func Open(ctx context.Context, databaseURL string, pool PoolConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("database connection established", map[string]interface{}{
		"max_open_conns":    pool.MaxOpenConns,
		"max_idle_conns":    pool.MaxIdleConns,
		"conn_max_lifetime": pool.ConnMaxLifetime.String(),
	})
	return db, nil
}

// Store persists and queries water tests.
type Store struct {
	db         *sql.DB
	insertStmt *sql.Stmt
}

// NewStore prepares the insert statement on db. The caller owns db.
func NewStore(ctx context.Context, db *sql.DB) (*Store, error) {
	stmt, err := db.PrepareContext(ctx, insertQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	return &Store{db: db, insertStmt: stmt}, nil
}

// InsertValues lays out rec in Columns order.
func InsertValues(rec models.Record) []interface{} {
	values := make([]interface{}, 0, len(Columns))
	values = append(values, rec.Submission[models.KeyLocation], nullIfEmpty(rec.Submission[models.KeyTestDate]))
	for _, v := range rec.Request {
		values = append(values, v)
	}
	return append(values,
		rec.Submission[models.KeyWaterSource],
		rec.Submission[models.KeyAdditionalNotes],
		rec.Prediction,
	)
}

// InsertTest writes one row and returns its generated id.
func (s *Store) InsertTest(ctx context.Context, rec models.Record) (int64, error) {
	var id int64
	if err := s.insertStmt.QueryRowContext(ctx, InsertValues(rec)...).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert water test: %w", err)
	}
	return id, nil
}

// Filter narrows QueryTests. Empty fields are ignored.
type Filter struct {
	Location    string
	WaterSource string
	Prediction  string
}

// QueryTests retrieves the newest water tests with safe filtering
func (s *Store) QueryTests(ctx context.Context, limit int, f Filter) ([]models.StoredTest, error) {
	query := `
		SELECT id, location, test_date::text, ph_level, turbidity, temperature,
		       electrical_conductivity, dissolved_oxygen, salinity,
		       total_dissolved_solids, hardness, alkalinity, chlorine,
		       total_coliforms, e_coli, water_source, additional_notes, prediction
		FROM water_tests`

	var (
		args       []interface{}
		conditions []string
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("location", f.Location)
	add("water_source", f.WaterSource)
	add("prediction", f.Prediction)

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	tests := []models.StoredTest{}
	for rows.Next() {
		var (
			t                       models.StoredTest
			location, source, notes sql.NullString
			testDate, prediction    sql.NullString
		)
		if err := rows.Scan(&t.ID, &location, &testDate, &t.PHLevel, &t.Turbidity, &t.Temperature,
			&t.ElectricalConductivity, &t.DissolvedOxygen, &t.Salinity,
			&t.TotalDissolvedSolids, &t.Hardness, &t.Alkalinity, &t.Chlorine,
			&t.TotalColiforms, &t.EColi, &source, &notes, &prediction); err != nil {
			logger.Error("failed to scan row", map[string]interface{}{"error": err.Error()})
			continue
		}
		t.Location = location.String
		t.WaterSource = source.String
		t.AdditionalNotes = notes.String
		if testDate.Valid {
			t.TestDate = &testDate.String
		}
		if prediction.Valid {
			t.Prediction = &prediction.String
		}
		tests = append(tests, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return tests, nil
}

// Close releases the prepared statement. The *sql.DB stays open.
func (s *Store) Close() error {
	return s.insertStmt.Close()
}

func nullIfEmpty(s string) interface{} {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
