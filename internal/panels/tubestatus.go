package panels

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/koios/trmnl-renderer/pkg/models"
)

// TubeStatusName is the registry name of the London Underground status panel
const TubeStatusName = "tube-status"

// DefaultTubeStatusEndpoint is the TfL line status API
const DefaultTubeStatusEndpoint = "https://api.tfl.gov.uk/Line/Mode/tube,elizabeth-line,overground,dlr/status"

const goodService = 10

type tubeStatusSettings struct {
	Endpoint string `settings:"endpoint" validate:"omitempty,url"`
}

type tflLine struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	LineStatuses []struct {
		StatusSeverity            int    `json:"statusSeverity"`
		StatusSeverityDescription string `json:"statusSeverityDescription"`
		ValidityPeriods           []struct {
			IsNow bool `json:"isNow"`
		} `json:"validityPeriods"`
	} `json:"lineStatuses"`
}

type disruptedLine struct {
	ID     string
	Name   string
	Status string
}

var tubeStatusTemplate = template.Must(template.New(TubeStatusName).Parse(`<div class="layout layout--col tube-status-panel">
	<style>
		.tube-status-panel__lines { display: block; margin-bottom: 10px; outline: 1px solid #000; }
		.tube-status-panel__line { display: grid; grid-template-columns: 170px 1fr; border: 1px solid #fff; }
		.tube-status-panel__name, .tube-status-panel__status { overflow: hidden; padding: 10px; text-overflow: ellipsis; white-space: nowrap; }
	</style>
	{{- if .Lines }}
	<dl class="tube-status-panel__lines">
		{{- range .Lines }}
		<div class="tube-status-panel__line">
			<dt class="value value--xxsmall tube-status-panel__name tube-status-panel__name--{{ .ID }}">{{ .Name }}</dt>
			<dd class="value value--xxsmall tube-status-panel__status">{{ .Status }}</dd>
		</div>
		{{- end }}
	</dl>
	<span class="label text--black">Good service on all other lines!</span>
	{{- else }}
	<span class="label text--black">Good service on all lines!</span>
	{{- end }}
</div>`))

// TubeStatus lists London transport lines that currently report disruption
type TubeStatus struct {
	endpoint string
	client   *http.Client
}

// NewTubeStatus is the Factory for TubeStatus
func NewTubeStatus() Panel {
	return &TubeStatus{client: &http.Client{Timeout: 10 * time.Second}}
}

// Initialize validates the optional endpoint override
func (p *TubeStatus) Initialize(_ context.Context, settings map[string]any) error {
	var s tubeStatusSettings
	if err := decodeSettings(settings, &s); err != nil {
		return err
	}

	p.endpoint = s.Endpoint
	if p.endpoint == "" {
		p.endpoint = DefaultTubeStatusEndpoint
	}
	return nil
}

// Render fetches current line status. An unreachable API degrades to a
// problem message rather than an error.
func (p *TubeStatus) Render(ctx context.Context) (models.PanelRender, error) {
	lines, err := p.disruptedLines(ctx)
	if err != nil {
		return models.PanelRender{
			HTML:   Problem("Could not load tube status from TFL!"),
			Failed: true,
		}, nil
	}

	var b strings.Builder
	if err := tubeStatusTemplate.Execute(&b, struct{ Lines []disruptedLine }{lines}); err != nil {
		return models.PanelRender{}, err
	}
	return models.PanelRender{HTML: b.String()}, nil
}

func (p *TubeStatus) disruptedLines(ctx context.Context) ([]disruptedLine, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var lines []tflLine
	if err := json.NewDecoder(resp.Body).Decode(&lines); err != nil {
		return nil, err
	}

	var disrupted []disruptedLine
	for _, line := range lines {
	statuses:
		for _, status := range line.LineStatuses {
			if status.StatusSeverity == goodService {
				continue
			}
			for _, period := range status.ValidityPeriods {
				if period.IsNow {
					disrupted = append(disrupted, disruptedLine{ID: line.ID, Name: line.Name, Status: status.StatusSeverityDescription})
					break statuses
				}
			}
		}
	}

	sort.Slice(disrupted, func(i, j int) bool { return disrupted[i].Name < disrupted[j].Name })
	return disrupted, nil
}
