package app

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	chart "github.com/wcharczuk/go-chart/v2"
)

type deltaPoint struct {
	Block uint64
	Delta int64
}

// Report renders a chain's raw delta series from the flushed CSV log as a
// PNG chart.
func (a *App) Report(opts ReportOptions) error {
	if opts.Chain == "" {
		return errors.New("--chain is required")
	}
	if opts.PNGPath == "" {
		return errors.New("--png is required")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	csvPath := filepath.Join(a.Config.Output.Dir, opts.Chain+"_deltas.csv")
	points, err := readDeltaCSV(csvPath)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		a.Logger.Info().Str("chain", opts.Chain).Msg("no deltas recorded for chain")
		return nil
	}

	downsampled := downsamplePoints(points, opts.MaxPoints)
	a.Logger.Info().
		Str("chain", opts.Chain).
		Int("total", len(points)).
		Int("plotted", len(downsampled)).
		Msg("rendering delta chart")

	return writeDeltaPNG(opts.PNGPath, opts.Chain, downsampled)
}

func readDeltaCSV(path string) ([]deltaPoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open deltas csv: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read deltas csv: %w", err)
	}

	points := make([]deltaPoint, 0, len(records))
	for i, record := range records {
		if i == 0 || len(record) < 3 {
			// header row
			continue
		}
		block, err := strconv.ParseUint(record[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: bad block number %q", i, record[1])
		}
		delta, err := strconv.ParseInt(record[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: bad delta %q", i, record[2])
		}
		points = append(points, deltaPoint{Block: block, Delta: delta})
	}
	return points, nil
}

func downsamplePoints(points []deltaPoint, max int) []deltaPoint {
	if max <= 0 || len(points) <= max {
		return points
	}

	result := make([]deltaPoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writeDeltaPNG(path, chain string, points []deltaPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]float64, len(points))
	y := make([]float64, len(points))
	for i, p := range points {
		x[i] = float64(p.Block)
		y[i] = float64(p.Delta)
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			Name: "Block number",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		YAxis: chart.YAxis{
			Name: "Delta (ms)",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    chain,
				XValues: x,
				YValues: y,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
