//go:build integration

package data

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func setupPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("roadrisk"),
		postgres.WithUsername("roadrisk"),
		postgres.WithPassword("roadrisk"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("error terminating container: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestPostgres_Store(t *testing.T) {
	dsn := setupPostgres(t)

	require.NoError(t, Init(dsn))
	require.NoError(t, Init(dsn))

	db, err := GetDB(dsn)
	require.NoError(t, err)
	defer db.Close()
	assert.True(t, isPostgres(db))
	assert.Equal(t, "SELECT $1, $2", rebind(db, "SELECT ?, ?"))

	res, err := SaveAccidents(db, []*Accident{
		testAccident("1", "SP", 116, 12.3, 1, 0, 0),
		testAccident("2", "SP", 116, 17.9, 0, 1, 0),
		testAccident("3", "SP", 116, 19.99, 0, 0, 0),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Inserted)

	list, err := GetSegmentStats(db, SegmentSizeKM)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 10, list[0].KMSegment)
	assert.Equal(t, 3, list[0].Accidents)
	assert.InDelta(t, 1.0, list[0].MeanSeverity, 1e-9)

	hw, err := GetHighwayStats(db)
	require.NoError(t, err)
	require.Len(t, hw, 1)

	state, err := GetDataState(db)
	require.NoError(t, err)
	assert.Equal(t, int64(3), state["accidents"])
}
