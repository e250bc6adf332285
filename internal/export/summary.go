package export

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/airmap/internal/model"
	"github.com/sells-group/airmap/internal/pipeline"
)

// manifest is the summary.yaml document.
type manifest struct {
	Summary model.RunSummary `yaml:"summary"`
	Config  manifestConfig   `yaml:"config"`
	Breaks  []model.Breaks   `yaml:"breaks,omitempty"`
	Delta   []model.Breaks   `yaml:"delta_breaks,omitempty"`
	Phases  []manifestPhase  `yaml:"phases,omitempty"`
	Failed  map[int]string   `yaml:"failed_years,omitempty"`
}

type manifestConfig struct {
	Component     string  `yaml:"component"`
	XName         string  `yaml:"x_name"`
	YName         string  `yaml:"y_name"`
	EPSG          int     `yaml:"epsg"`
	IDWK          int     `yaml:"idw_k"`
	IDWRadius     float64 `yaml:"idw_radius"`
	IDWMinDist    float64 `yaml:"idw_min_distance"`
	IndicatorBack bool    `yaml:"indicator_fallback"`
}

type manifestPhase struct {
	Name       string `yaml:"name"`
	DurationMS int64  `yaml:"duration_ms"`
	Err        string `yaml:"error,omitempty"`
}

// WriteSummary writes the run summary, the breakpoints and the breaks and
// delta policies as YAML.
func WriteSummary(path string, res *pipeline.Result) (string, error) {
	m := manifest{
		Summary: res.Summary,
		Config: manifestConfig{
			Component:     res.Config.Component,
			XName:         res.Config.XName,
			YName:         res.Config.YName,
			EPSG:          res.Config.EPSG,
			IDWK:          res.Config.IDW.K,
			IDWRadius:     res.Config.IDW.Radius,
			IDWMinDist:    res.Config.IDW.MinDistance,
			IndicatorBack: res.Config.IndicatorFallback,
		},
		Breaks: res.Breaks(),
		Delta:  res.DeltaBreaks,
	}
	for _, p := range res.Phases {
		m.Phases = append(m.Phases, manifestPhase{Name: p.Name, DurationMS: p.Duration.Milliseconds(), Err: p.Err})
	}
	for _, y := range res.Years {
		if y.Err != nil {
			if m.Failed == nil {
				m.Failed = make(map[int]string)
			}
			m.Failed[y.Year] = y.Err.Error()
		}
	}

	data, err := yaml.Marshal(&m)
	if err != nil {
		return "", eris.Wrap(err, "export: encode summary")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrap(err, "export: write summary")
	}
	return path, nil
}
