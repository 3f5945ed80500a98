package reliability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/ftql/internal/database"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

// CandlePruner deletes candles older than a cutoff.
type CandlePruner interface {
	DeleteBefore(cutoff int64) (int64, error)
}

// DailyMaintenanceJob checks database health, checkpoints WAL files, prunes old
// candles and watches free disk space.
type DailyMaintenanceJob struct {
	databases map[string]*database.DB
	pruner    CandlePruner
	retention time.Duration
	dataDir   string
	now       func() time.Time
	log       zerolog.Logger
}

// NewDailyMaintenanceJob creates a new daily maintenance job. A non-positive
// retention keeps every candle.
func NewDailyMaintenanceJob(
	databases map[string]*database.DB,
	pruner CandlePruner,
	retention time.Duration,
	dataDir string,
	log zerolog.Logger,
) *DailyMaintenanceJob {
	return &DailyMaintenanceJob{
		databases: databases,
		pruner:    pruner,
		retention: retention,
		dataDir:   dataDir,
		now:       time.Now,
		log:       log.With().Str("job", "daily_maintenance").Logger(),
	}
}

// Run executes the daily maintenance job
func (j *DailyMaintenanceJob) Run() error {
	j.log.Info().Msg("Starting daily maintenance")
	startTime := time.Now()

	// Step 1: Integrity check for all databases
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	for _, name := range sortedNames(j.databases) {
		if err := j.databases[name].HealthCheck(ctx); err != nil {
			j.log.Error().Str("database", name).Err(err).Msg("CRITICAL: Database failed health check")
			return fmt.Errorf("CRITICAL: %s failed health check: %w", name, err)
		}
	}

	// Step 2: WAL checkpoint for all databases (prevent bloat)
	for _, name := range sortedNames(j.databases) {
		if err := j.databases[name].WALCheckpoint("TRUNCATE"); err != nil {
			// Not critical
			j.log.Warn().Str("database", name).Err(err).Msg("WAL checkpoint failed")
		}
	}

	// Step 3: Drop candles outside the retention window
	if j.pruner != nil && j.retention > 0 {
		cutoff := j.now().Add(-j.retention).Unix()
		deleted, err := j.pruner.DeleteBefore(cutoff)
		if err != nil {
			return fmt.Errorf("failed to prune candles: %w", err)
		}
		j.log.Info().Int64("deleted", deleted).Int64("cutoff", cutoff).Msg("Pruned old candles")
	}

	// Step 4: Check disk space
	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Daily maintenance completed successfully")
	return nil
}

// Name returns the job name for scheduler
func (j *DailyMaintenanceJob) Name() string {
	return "daily_maintenance"
}

// checkDiskSpace verifies sufficient disk space is available
func (j *DailyMaintenanceJob) checkDiskSpace() error {
	usage, err := disk.Usage(j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableGB := float64(usage.Free) / 1e9
	j.log.Debug().Float64("available_gb", availableGB).Msg("Disk space check")

	// CRITICAL: Less than 100MB
	if availableGB < 0.1 {
		j.log.Error().
			Float64("available_gb", availableGB).
			Msg("CRITICAL: Insufficient disk space")
		return fmt.Errorf("CRITICAL: only %.2f GB free", availableGB)
	}

	// WARNING: Less than 1GB
	if availableGB < 1.0 {
		j.log.Warn().
			Float64("available_gb", availableGB).
			Msg("Disk space running low")
	}
	return nil
}

// WeeklyMaintenanceJob vacuums the databases that churn.
type WeeklyMaintenanceJob struct {
	databases map[string]*database.DB
	log       zerolog.Logger
}

// NewWeeklyMaintenanceJob creates a new weekly maintenance job
func NewWeeklyMaintenanceJob(databases map[string]*database.DB, log zerolog.Logger) *WeeklyMaintenanceJob {
	return &WeeklyMaintenanceJob{
		databases: databases,
		log:       log.With().Str("job", "weekly_maintenance").Logger(),
	}
}

// Run executes the weekly maintenance job
func (j *WeeklyMaintenanceJob) Run() error {
	j.log.Info().Msg("Starting weekly maintenance")
	startTime := time.Now()

	// The runs ledger is append-only and never vacuumed
	for _, name := range []string{database.NameHistory, database.NameClientData} {
		db, ok := j.databases[name]
		if !ok {
			continue
		}
		if err := j.vacuumDatabase(db, name); err != nil {
			// Continue with other databases
			j.log.Error().Str("database", name).Err(err).Msg("VACUUM failed")
		}
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Weekly maintenance completed successfully")
	return nil
}

// Name returns the job name for scheduler
func (j *WeeklyMaintenanceJob) Name() string {
	return "weekly_maintenance"
}

// vacuumDatabase performs VACUUM on a database
func (j *WeeklyMaintenanceJob) vacuumDatabase(db *database.DB, name string) error {
	before, err := db.GetStats()
	if err != nil {
		return err
	}

	if _, err := db.Conn().Exec("VACUUM"); err != nil {
		return fmt.Errorf("VACUUM failed: %w", err)
	}

	after, err := db.GetStats()
	if err != nil {
		return err
	}

	sizeBefore := float64(before.PageCount*before.PageSize) / 1024 / 1024
	sizeAfter := float64(after.PageCount*after.PageSize) / 1024 / 1024
	j.log.Info().
		Str("database", name).
		Float64("size_before_mb", sizeBefore).
		Float64("size_after_mb", sizeAfter).
		Float64("space_reclaimed_mb", sizeBefore-sizeAfter).
		Msg("VACUUM completed")
	return nil
}

func sortedNames(databases map[string]*database.DB) []string {
	names := make([]string, 0, len(databases))
	for name := range databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
