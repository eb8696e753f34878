package data

import (
	"database/sql"
	"errors"
	"fmt"
)

const (
	SegmentSizeKM = 10

	// both dialects truncate km to the segment start; postgres casts round so floor first
	selectSegmentStatsSQLite = `SELECT uf, br, CAST(km / %d AS INTEGER) * %d AS km_segment,
			COUNT(*), AVG(severity), SUM(deaths), SUM(serious_injuries), SUM(minor_injuries)
		FROM accident
		GROUP BY uf, br, km_segment
		ORDER BY uf, br, km_segment
	`

	selectSegmentStatsPostgres = `SELECT uf, br, CAST(FLOOR(km / %d) AS INTEGER) * %d AS km_segment,
			COUNT(*), AVG(severity)::DOUBLE PRECISION, SUM(deaths), SUM(serious_injuries), SUM(minor_injuries)
		FROM accident
		GROUP BY uf, br, km_segment
		ORDER BY uf, br, km_segment
	`

	selectHighwayStatsSQL = `SELECT uf, br, MIN(km), MAX(km), COUNT(*)
		FROM accident
		WHERE km > 0
		GROUP BY uf, br
		ORDER BY uf, br
	`
)

// SegmentStats aggregates the accidents of one highway segment.
type SegmentStats struct {
	UF              string  `json:"uf" yaml:"uf"`
	BR              int     `json:"br" yaml:"br"`
	KMSegment       int     `json:"km_segment" yaml:"km_segment"`
	Accidents       int     `json:"accidents" yaml:"accidents"`
	MeanSeverity    float64 `json:"mean_severity" yaml:"mean_severity"`
	Deaths          int     `json:"deaths" yaml:"deaths"`
	SeriousInjuries int     `json:"serious_injuries" yaml:"serious_injuries"`
	MinorInjuries   int     `json:"minor_injuries" yaml:"minor_injuries"`
}

// HighwayStats aggregates the accidents of one highway within a state.
type HighwayStats struct {
	UF        string  `json:"uf" yaml:"uf"`
	BR        int     `json:"br" yaml:"br"`
	MinKM     float64 `json:"min_km" yaml:"min_km"`
	MaxKM     float64 `json:"max_km" yaml:"max_km"`
	Accidents int     `json:"accidents" yaml:"accidents"`
}

// GetSegmentStats groups accidents into fixed size km segments.
func GetSegmentStats(db *sql.DB, sizeKM int) ([]*SegmentStats, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if sizeKM <= 0 {
		return nil, errors.New("segment size must be positive")
	}

	q := selectSegmentStatsSQLite
	if isPostgres(db) {
		q = selectSegmentStatsPostgres
	}

	rows, err := db.Query(fmt.Sprintf(q, sizeKM, sizeKM))
	if err != nil {
		return nil, fmt.Errorf("error querying segment stats: %w", err)
	}
	defer rows.Close()

	list := make([]*SegmentStats, 0)
	for rows.Next() {
		s := &SegmentStats{}
		if err := rows.Scan(&s.UF, &s.BR, &s.KMSegment, &s.Accidents, &s.MeanSeverity,
			&s.Deaths, &s.SeriousInjuries, &s.MinorInjuries); err != nil {
			return nil, fmt.Errorf("error scanning segment stats: %w", err)
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating segment stats: %w", err)
	}
	return list, nil
}

// GetHighwayStats returns the km range and accident count per highway and state.
func GetHighwayStats(db *sql.DB) ([]*HighwayStats, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := db.Query(selectHighwayStatsSQL)
	if err != nil {
		return nil, fmt.Errorf("error querying highway stats: %w", err)
	}
	defer rows.Close()

	list := make([]*HighwayStats, 0)
	for rows.Next() {
		h := &HighwayStats{}
		if err := rows.Scan(&h.UF, &h.BR, &h.MinKM, &h.MaxKM, &h.Accidents); err != nil {
			return nil, fmt.Errorf("error scanning highway stats: %w", err)
		}
		list = append(list, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating highway stats: %w", err)
	}
	return list, nil
}
