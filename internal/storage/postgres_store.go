package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/roadside-dispatch/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) CreateRequest(r *models.ServiceRequest) error {
	_, err := p.db.Exec(`INSERT INTO service_requests(id, customer_id, pickup_lat, pickup_lon, dropoff_lat, dropoff_lon, status, driver_id, dispatch_attempts, fare_estimate, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),$9,$10,$11,$12)`,
		r.ID, r.CustomerID, r.Pickup.Lat, r.Pickup.Lon, r.Dropoff.Lat, r.Dropoff.Lon, string(r.Status), r.DriverID, r.DispatchAttempts, r.FareEstimate, r.CreatedAt, r.UpdatedAt)
	return err
}

func (p *PostgresStore) GetRequest(id string) (*models.ServiceRequest, error) {
	row := p.db.QueryRow(`SELECT id, customer_id, pickup_lat, pickup_lon, dropoff_lat, dropoff_lon, status, COALESCE(driver_id, ''), dispatch_attempts, fare_estimate, created_at, updated_at
		FROM service_requests WHERE id=$1`, id)
	return scanRequest(row)
}

func scanRequest(row *sql.Row) (*models.ServiceRequest, error) {
	var r models.ServiceRequest
	var status string
	err := row.Scan(&r.ID, &r.CustomerID, &r.Pickup.Lat, &r.Pickup.Lon, &r.Dropoff.Lat, &r.Dropoff.Lon, &status, &r.DriverID, &r.DispatchAttempts, &r.FareEstimate, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Status = models.RequestStatus(status)
	return &r, nil
}

func (p *PostgresStore) UpdateStatus(id string, status models.RequestStatus) error {
	cur, err := p.GetRequest(id)
	if err != nil {
		return err
	}
	if !models.CanTransition(cur.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, status)
	}
	// optimistic: only apply if the status we validated against is still current
	res, err := p.db.Exec(`UPDATE service_requests SET status=$1, updated_at=now() WHERE id=$2 AND status=$3`,
		string(status), id, string(cur.Status))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: concurrent update on %s", ErrInvalidTransition, id)
	}
	return nil
}

// AssignDriver is the single write path out of the dispatch loop. The
// conditional UPDATE makes the check-and-set atomic in the database, so
// at most one concurrent caller wins.
func (p *PostgresStore) AssignDriver(id, driverID string) (bool, error) {
	res, err := p.db.Exec(`UPDATE service_requests
		SET status=$1, driver_id=$2, updated_at=now()
		WHERE id=$3 AND status IN ($4,$5) AND driver_id IS NULL`,
		string(models.StatusAccepted), driverID, id, string(models.StatusSearching), string(models.StatusOffered))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (p *PostgresStore) IncrementDispatchAttempts(id string) error {
	_, err := p.db.Exec(`UPDATE service_requests SET dispatch_attempts = dispatch_attempts + 1, updated_at=now() WHERE id=$1`, id)
	return err
}

func (p *PostgresStore) PendingDispatch() ([]*models.ServiceRequest, error) {
	rows, err := p.db.Query(`SELECT id, customer_id, pickup_lat, pickup_lon, dropoff_lat, dropoff_lon, status, COALESCE(driver_id, ''), dispatch_attempts, fare_estimate, created_at, updated_at
		FROM service_requests WHERE driver_id IS NULL AND status IN ($1,$2)`,
		string(models.StatusSearching), string(models.StatusOffered))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.ServiceRequest
	for rows.Next() {
		var r models.ServiceRequest
		var status string
		if err := rows.Scan(&r.ID, &r.CustomerID, &r.Pickup.Lat, &r.Pickup.Lon, &r.Dropoff.Lat, &r.Dropoff.Lon, &status, &r.DriverID, &r.DispatchAttempts, &r.FareEstimate, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Status = models.RequestStatus(status)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) RecordAttempt(a models.DispatchAttempt) error {
	_, err := p.db.Exec(`INSERT INTO dispatch_attempts(request_id, driver_id, offered_at, responded_at, outcome) VALUES($1,$2,$3,$4,$5)`,
		a.RequestID, a.DriverID, a.OfferedAt, a.RespondedAt, string(a.Outcome))
	return err
}

func (p *PostgresStore) ResolveAttempt(requestID, driverID string, outcome models.AttemptOutcome, respondedAt time.Time) error {
	res, err := p.db.Exec(`UPDATE dispatch_attempts SET outcome=$1, responded_at=$2
		WHERE request_id=$3 AND driver_id=$4 AND outcome=$5`,
		string(outcome), respondedAt, requestID, driverID, string(models.OutcomePending))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) AttemptsForRequest(requestID string) ([]models.DispatchAttempt, error) {
	rows, err := p.db.Query(`SELECT request_id, driver_id, offered_at, responded_at, outcome FROM dispatch_attempts WHERE request_id=$1 ORDER BY offered_at`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.DispatchAttempt
	for rows.Next() {
		var a models.DispatchAttempt
		var outcome string
		var responded sql.NullTime
		if err := rows.Scan(&a.RequestID, &a.DriverID, &a.OfferedAt, &responded, &outcome); err != nil {
			return nil, err
		}
		if responded.Valid {
			ts := responded.Time
			a.RespondedAt = &ts
		}
		a.Outcome = models.AttemptOutcome(outcome)
		out = append(out, a)
	}
	return out, rows.Err()
}
