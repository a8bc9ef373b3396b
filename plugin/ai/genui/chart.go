package genui

import (
	"encoding/json"
	"fmt"
	"net/url"
)

const quickChartBaseURL = "https://quickchart.io/chart"

// BarSeries is a renderable single-dataset bar chart.
type BarSeries struct {
	Label  string    `json:"label"`
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

type chartDataset struct {
	Label           string    `json:"label"`
	Data            []float64 `json:"data"`
	BackgroundColor string    `json:"backgroundColor"`
}

type chartConfig struct {
	Type string `json:"type"`
	Data struct {
		Labels   []string       `json:"labels"`
		Datasets []chartDataset `json:"datasets"`
	} `json:"data"`
}

// QuickChartURL renders the series as a QuickChart image URL.
func (s BarSeries) QuickChartURL(width, height int) (string, error) {
	cfg := chartConfig{Type: "bar"}
	cfg.Data.Labels = s.Labels
	cfg.Data.Datasets = []chartDataset{{Label: s.Label, Data: s.Values, BackgroundColor: "#4caf50"}}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s?c=%s&w=%d&h=%d", quickChartBaseURL, url.QueryEscape(string(raw)), width, height), nil
}
