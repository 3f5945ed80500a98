package weights

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aristath/ftql/internal/modules/rebalancing"
	"github.com/rs/zerolog"
)

// Report file names written into the report directory.
const (
	BuyFile           = "buy.json"
	SellFile          = "sell.json"
	RecentWeightsFile = "recent_weights.json"
)

// Exporter writes the report files of a run.
type Exporter struct {
	dir      string
	location *time.Location
	log      zerolog.Logger
}

// NewExporter creates an exporter writing into dir. Recent weights are keyed by
// their time in location.
func NewExporter(dir string, location *time.Location, log zerolog.Logger) *Exporter {
	if location == nil {
		location = time.UTC
	}
	return &Exporter{
		dir:      dir,
		location: location,
		log:      log.With().Str("component", "exporter").Logger(),
	}
}

// RecentWeights renders the latest allocation as {"<time>": {"SYM": weight}}.
func (e *Exporter) RecentWeights(run *Run) ([]byte, error) {
	key := run.LatestTime().In(e.location).Format(time.RFC3339)
	return json.Marshal(map[string]map[string]float64{key: run.Latest()})
}

// Export writes buy.json, sell.json and recent_weights.json and returns the
// paths written. Trade files are skipped when the run has no trade plan.
func (e *Exporter) Export(run *Run) ([]string, error) {
	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	var written []string
	if run.Trades != nil {
		if err := e.writeJSON(BuyFile, run.Trades.Buy); err != nil {
			return nil, err
		}
		if err := e.writeJSON(SellFile, run.Trades.Sell); err != nil {
			return nil, err
		}
		written = append(written, filepath.Join(e.dir, BuyFile), filepath.Join(e.dir, SellFile))
	} else {
		e.log.Warn().Str("run_id", run.ID).Msg("Fewer than two weight rows, trade files not updated")
	}

	recent, err := e.RecentWeights(run)
	if err != nil {
		return nil, fmt.Errorf("failed to encode recent weights: %w", err)
	}
	if err := e.writeFile(RecentWeightsFile, recent); err != nil {
		return nil, err
	}
	written = append(written, filepath.Join(e.dir, RecentWeightsFile))

	e.log.Info().Str("run_id", run.ID).Strs("files", written).Msg("Reports exported")
	return written, nil
}

func (e *Exporter) writeJSON(name string, instructions []rebalancing.TradeInstruction) error {
	if instructions == nil {
		instructions = []rebalancing.TradeInstruction{}
	}
	data, err := json.Marshal(instructions)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return e.writeFile(name, data)
}

func (e *Exporter) writeFile(name string, data []byte) error {
	path := filepath.Join(e.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}
