package data

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lucsky/cuid"
)

const (
	SeverityNoVictims = 0
	SeverityInjured   = 1
	SeverityFatal     = 2

	insertAccidentSQL = `INSERT INTO accident (
			id, uf, br, km, occurred_at, hour, day_of_week, month,
			weather, day_phase, road_type, deaths, serious_injuries,
			minor_injuries, severity, latitude, longitude, source
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`

	deleteAccidentsSQL = `DELETE FROM accident`
)

// Accident is a single historical accident record.
type Accident struct {
	ID              string    `json:"id" yaml:"id"`
	UF              string    `json:"uf" yaml:"uf"`
	BR              int       `json:"br" yaml:"br"`
	KM              float64   `json:"km" yaml:"km"`
	OccurredAt      time.Time `json:"occurred_at" yaml:"occurred_at"`
	Weather         string    `json:"weather" yaml:"weather"`
	DayPhase        string    `json:"day_phase" yaml:"day_phase"`
	RoadType        string    `json:"road_type" yaml:"road_type"`
	Deaths          int       `json:"deaths" yaml:"deaths"`
	SeriousInjuries int       `json:"serious_injuries" yaml:"serious_injuries"`
	MinorInjuries   int       `json:"minor_injuries" yaml:"minor_injuries"`
	Latitude        *float64  `json:"latitude,omitempty" yaml:"latitude,omitempty"`
	Longitude       *float64  `json:"longitude,omitempty" yaml:"longitude,omitempty"`
	Source          string    `json:"source,omitempty" yaml:"source,omitempty"`
}

// Severity is 2 when anyone died, 1 when anyone was injured, else 0.
func (a *Accident) Severity() int {
	switch {
	case a.Deaths > 0:
		return SeverityFatal
	case a.SeriousInjuries > 0 || a.MinorInjuries > 0:
		return SeverityInjured
	default:
		return SeverityNoVictims
	}
}

// Weekday returns the day of week with Monday as 0 and Sunday as 6.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// SaveResult summarizes a save.
type SaveResult struct {
	Received int   `json:"received" yaml:"received"`
	Inserted int   `json:"inserted" yaml:"inserted"`
	Deleted  int64 `json:"deleted,omitempty" yaml:"deleted,omitempty"`
}

// SaveAccidents inserts records in a single transaction. Records whose ID
// already exists are skipped; records without ID get a generated one.
// The optional progress callback is invoked after each record.
func SaveAccidents(db *sql.DB, list []*Accident, progress func(int)) (*SaveResult, error) {
	return saveAccidents(db, list, progress, false)
}

// ReplaceAccidents deletes every existing record and inserts list in the
// same transaction. On any failure the previous records are kept.
func ReplaceAccidents(db *sql.DB, list []*Accident, progress func(int)) (*SaveResult, error) {
	return saveAccidents(db, list, progress, true)
}

func saveAccidents(db *sql.DB, list []*Accident, progress func(int), replace bool) (*SaveResult, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	res := &SaveResult{Received: len(list)}
	if len(list) == 0 && !replace {
		return res, nil
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("error starting accident tx: %w", err)
	}

	if replace {
		r, err := tx.Exec(deleteAccidentsSQL)
		if err != nil {
			rollbackTransaction(tx)
			return nil, fmt.Errorf("error deleting accidents: %w", err)
		}
		res.Deleted, _ = r.RowsAffected()
	}

	stmt, err := tx.Prepare(rebind(db, insertAccidentSQL))
	if err != nil {
		rollbackTransaction(tx)
		return nil, fmt.Errorf("error preparing accident insert: %w", err)
	}
	defer stmt.Close()

	for i, a := range list {
		if err := validateAccident(a); err != nil {
			rollbackTransaction(tx)
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if a.ID == "" {
			a.ID = cuid.New()
		}
		source := a.Source
		if source == "" {
			source = "datatran"
		}

		t := a.OccurredAt.UTC()
		r, err := stmt.Exec(
			a.ID, strings.ToUpper(a.UF), a.BR, a.KM, t.Format(time.RFC3339),
			t.Hour(), Weekday(t), int(t.Month()),
			a.Weather, a.DayPhase, a.RoadType, a.Deaths, a.SeriousInjuries,
			a.MinorInjuries, a.Severity(), nullFloat(a.Latitude), nullFloat(a.Longitude), source,
		)
		if err != nil {
			rollbackTransaction(tx)
			return nil, fmt.Errorf("error inserting accident %s: %w", a.ID, err)
		}
		if n, err := r.RowsAffected(); err == nil {
			res.Inserted += int(n)
		}
		if progress != nil {
			progress(i + 1)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing accident tx: %w", err)
	}

	slog.Debug("accidents saved", "received", res.Received, "inserted", res.Inserted, "deleted", res.Deleted)
	return res, nil
}

// ClearAccidents deletes every accident record.
func ClearAccidents(db *sql.DB) (int64, error) {
	if db == nil {
		return 0, errDBNotInitialized
	}

	r, err := db.Exec(deleteAccidentsSQL)
	if err != nil {
		return 0, fmt.Errorf("error deleting accidents: %w", err)
	}
	n, _ := r.RowsAffected()
	return n, nil
}

func validateAccident(a *Accident) error {
	if a == nil {
		return errors.New("nil accident")
	}
	if a.UF == "" || a.BR <= 0 || a.KM < 0 {
		return fmt.Errorf("invalid location uf=%q br=%d km=%g", a.UF, a.BR, a.KM)
	}
	if a.OccurredAt.IsZero() {
		return errors.New("occurred_at required")
	}
	return nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
