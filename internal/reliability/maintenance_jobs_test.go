package reliability

import (
	"errors"
	"testing"
	"time"

	"github.com/aristath/ftql/internal/database"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePruner struct {
	cutoff int64
	err    error
}

func (p *fakePruner) DeleteBefore(cutoff int64) (int64, error) {
	p.cutoff = cutoff
	return 7, p.err
}

func openDatabases(t *testing.T) (string, map[string]*database.DB) {
	t.Helper()
	dir := t.TempDir()
	dbs := make(map[string]*database.DB)
	for _, name := range []string{database.NameHistory, database.NameRuns, database.NameClientData} {
		db, err := database.Open(dir, name)
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		dbs[name] = db
	}
	return dir, dbs
}

func TestDailyMaintenanceJob_Run(t *testing.T) {
	dir, dbs := openDatabases(t)
	pruner := &fakePruner{}

	job := NewDailyMaintenanceJob(dbs, pruner, 30*24*time.Hour, dir, zerolog.Nop())
	now := time.Unix(1700000000, 0)
	job.now = func() time.Time { return now }

	assert.Equal(t, "daily_maintenance", job.Name())
	require.NoError(t, job.Run())
	assert.Equal(t, now.Add(-30*24*time.Hour).Unix(), pruner.cutoff)
}

func TestDailyMaintenanceJob_PruneFailure(t *testing.T) {
	dir, dbs := openDatabases(t)

	job := NewDailyMaintenanceJob(dbs, &fakePruner{err: errors.New("locked")}, time.Hour, dir, zerolog.Nop())
	assert.Error(t, job.Run())
}

func TestDailyMaintenanceJob_NoRetention(t *testing.T) {
	dir, dbs := openDatabases(t)
	pruner := &fakePruner{}

	job := NewDailyMaintenanceJob(dbs, pruner, 0, dir, zerolog.Nop())
	require.NoError(t, job.Run())
	assert.Zero(t, pruner.cutoff)
}

func TestWeeklyMaintenanceJob_Run(t *testing.T) {
	_, dbs := openDatabases(t)

	job := NewWeeklyMaintenanceJob(dbs, zerolog.Nop())
	assert.Equal(t, "weekly_maintenance", job.Name())
	assert.NoError(t, job.Run())
}
