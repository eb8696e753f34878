package data

import (
	"database/sql"
	"fmt"
)

var (
	stateQueries = map[string]string{
		"accidents":       "SELECT COUNT(*) FROM accident",
		"states":          "SELECT COUNT(DISTINCT uf) FROM accident",
		"highways":        "SELECT COUNT(DISTINCT uf || '-' || CAST(br AS TEXT)) FROM accident",
		"fatal_accidents": "SELECT COUNT(*) FROM accident WHERE severity = 2",
		"deaths":          "SELECT COALESCE(SUM(deaths), 0) FROM accident",
	}
)

// GetDataState returns the current state of the database.
func GetDataState(db *sql.DB) (map[string]int64, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	state := make(map[string]int64)
	for k, v := range stateQueries {
		var count int64
		if err := db.QueryRow(v).Scan(&count); err != nil {
			return nil, fmt.Errorf("error querying %s state: %w", k, err)
		}
		state[k] = count
	}
	return state, nil
}
