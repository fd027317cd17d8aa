package sqlite

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"ride-dispatcher/internal/database"
	"ride-dispatcher/internal/models"
)

type runRepository struct {
	store *Store
}

const runColumns = `id, created_at, ride_count, driver_count, rounds,
	in_between_cost, ride_cost, return_home_cost, total_cost`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (models.Run, error) {
	var run models.Run
	err := row.Scan(
		&run.ID, &run.CreatedAt, &run.RideCount, &run.DriverCount, &run.Rounds,
		&run.Cost.InBetween, &run.Cost.Rides, &run.Cost.ReturnHome, &run.Cost.Total,
	)
	return run, err
}

func (r *runRepository) List(ctx context.Context, limit, offset int) ([]models.Run, int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var total int
	if err := r.store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	query := `SELECT ` + runColumns + `
	          FROM runs
	          ORDER BY created_at DESC, id
	          LIMIT ? OFFSET ?`

	rows, err := r.store.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []models.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, total, nil
}

// GetByID returns database.ErrNotFound when no run has the given id
func (r *runRepository) GetByID(ctx context.Context, id string) (*models.Run, []models.RunAssignment, []models.ID, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	run, err := scanRun(r.store.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil, database.ErrNotFound
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to get run: %w", err)
	}

	assignRows, err := r.store.db.QueryContext(ctx, `
		SELECT run_id, driver_id, sequence, ride_id, cost_to_start
		FROM run_assignments
		WHERE run_id = ?`, id)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to query run assignments: %w", err)
	}
	defer assignRows.Close()

	assignments := []models.RunAssignment{}
	for assignRows.Next() {
		var a models.RunAssignment
		if err := assignRows.Scan(&a.RunID, &a.DriverID, &a.Sequence, &a.RideID, &a.CostToStart); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to scan run assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	if err := assignRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("error iterating run assignments: %w", err)
	}

	unassignedRows, err := r.store.db.QueryContext(ctx,
		`SELECT ride_id FROM run_unassigned WHERE run_id = ?`, id)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to query unassigned rides: %w", err)
	}
	defer unassignedRows.Close()

	unassigned := []models.ID{}
	for unassignedRows.Next() {
		var rideID models.ID
		if err := unassignedRows.Scan(&rideID); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to scan unassigned ride: %w", err)
		}
		unassigned = append(unassigned, rideID)
	}
	if err := unassignedRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("error iterating unassigned rides: %w", err)
	}

	// ids are compared numerically when both parse, which SQL text ordering cannot express
	slices.SortFunc(assignments, func(a, b models.RunAssignment) int {
		if c := models.CompareIDs(a.DriverID, b.DriverID); c != 0 {
			return c
		}
		return cmp.Compare(a.Sequence, b.Sequence)
	})
	slices.SortFunc(unassigned, models.CompareIDs)

	return &run, assignments, unassigned, nil
}

func (r *runRepository) Create(ctx context.Context, run *models.Run, assignments []models.RunAssignment, unassigned []models.ID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UTC(), run.RideCount, run.DriverCount, run.Rounds,
		run.Cost.InBetween, run.Cost.Rides, run.Cost.ReturnHome, run.Cost.Total,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	for _, a := range assignments {
		_, err := tx.ExecContext(ctx, `INSERT INTO run_assignments
			(run_id, driver_id, sequence, ride_id, cost_to_start) VALUES (?, ?, ?, ?, ?)`,
			run.ID, string(a.DriverID), a.Sequence, string(a.RideID), a.CostToStart,
		)
		if err != nil {
			return fmt.Errorf("failed to create run assignment: %w", err)
		}
	}

	for _, rideID := range unassigned {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_unassigned (run_id, ride_id) VALUES (?, ?)`, run.ID, string(rideID)); err != nil {
			return fmt.Errorf("failed to record unassigned ride: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *runRepository) Delete(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	// Foreign key cascade removes assignments and unassigned rows
	result, err := r.store.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return database.ErrNotFound
	}
	return nil
}
