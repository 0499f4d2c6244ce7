package orchestrator

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"tilestitch/pkg/config"
	"tilestitch/pkg/stitch"
)

// Manifest records one stitching run next to its final map.
type Manifest struct {
	RunID     string        `yaml:"runID"`
	CreatedAt time.Time     `yaml:"createdAt"`
	Width     int           `yaml:"width"`
	Height    int           `yaml:"height"`
	Rows      int           `yaml:"rows"`
	Cols      int           `yaml:"cols"`
	Tiling    config.Tiling `yaml:"tiling"`

	HoleFillMinPixels int `yaml:"holeFillMinPixels"`

	// PassX is nil when pass Y was resumed from persisted row strips
	PassX *stitch.Report `yaml:"passX,omitempty"`
	PassY stitch.Report  `yaml:"passY"`

	MaxID           uint32  `yaml:"maxID"`
	Filled          int     `yaml:"filled"`
	Discarded       int     `yaml:"discarded"`
	DiscardedPixels int     `yaml:"discardedPixels"`
	FilledMean      float64 `yaml:"filledMean"`
	FilledStd       float64 `yaml:"filledStd"`
}

func (m *Manifest) summarize() {
	all := m.PassY
	if m.PassX != nil {
		all = m.PassX.Merge(m.PassY)
	}
	t := all.Totals()
	m.MaxID = m.PassY.MaxID
	m.Filled = t.Filled
	m.Discarded = t.Discarded
	m.DiscardedPixels = t.DiscardedPixels
	m.FilledMean, m.FilledStd = all.MeanFilledSize()
}

// LoadManifest reads a manifest written by a previous run.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
