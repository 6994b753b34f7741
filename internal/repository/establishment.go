package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pharmago/internal/models"
)

type EstablishmentRepository struct {
	db *sql.DB
}

func NewEstablishmentRepository(db *sql.DB) *EstablishmentRepository {
	return &EstablishmentRepository{db: db}
}

func (r *EstablishmentRepository) GetByID(ctx context.Context, id string) (*models.Establishment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, timezone, delivery_fee, free_threshold
		FROM establishments WHERE id=$1`, id)

	e := &models.Establishment{}
	err := row.Scan(&e.ID, &e.Name, &e.Timezone, &e.Delivery.FeeAmount, &e.Delivery.FreeThreshold)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get establishment: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT weekday, closed, open_time, close_time
		FROM business_hours WHERE establishment_id=$1 ORDER BY weekday`, id)
	if err != nil {
		return nil, fmt.Errorf("get business hours: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d models.DaySchedule
		if err := rows.Scan(&d.Weekday, &d.Closed, &d.OpenTime, &d.CloseTime); err != nil {
			return nil, fmt.Errorf("scan business hours: %w", err)
		}
		e.Hours = append(e.Hours, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get business hours: %w", err)
	}
	return e, nil
}

func (r *EstablishmentRepository) ReplaceHours(ctx context.Context, id string, week models.WeeklySchedule) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace hours: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM business_hours WHERE establishment_id=$1`, id); err != nil {
		return fmt.Errorf("replace hours: delete: %w", err)
	}
	for _, d := range week {
		_, err := tx.ExecContext(ctx, `INSERT INTO business_hours (
				establishment_id, weekday, closed, open_time, close_time
			) VALUES ($1,$2,$3,$4,$5)`,
			id, d.Weekday, d.Closed, d.OpenTime, d.CloseTime,
		)
		if err != nil {
			return fmt.Errorf("replace hours: insert weekday %d: %w", d.Weekday, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace hours: commit: %w", err)
	}
	return nil
}
