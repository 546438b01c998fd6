package metrics

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
)

// DefaultTimeout bounds a push request when PushConfig.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// PushConfig configures a Pusher.
type PushConfig struct {
	// URL of the remote write server, without the /api/v1/write path.
	URL string
	// Prefix is prepended to every metric name, separated by an underscore.
	Prefix string
	// Job and Instance become the standard job/instance labels on every
	// series. Empty values omit the label.
	Job      string
	Instance string
	// Timeout bounds the whole push request.
	Timeout time.Duration
}

// Pusher writes a snapshot of a ScrapeRegistry to a VictoriaMetrics/Prometheus
// remote write endpoint. Scraping assumes a long-lived process, so after each
// pipeline execution the registry contents are pushed out in a single request
// to cover short-lived and one-shot runs as well.
type Pusher struct {
	url      string
	client   *http.Client
	prefix   string
	job      string
	instance string
}

// NewPusher creates a pusher for the remote write endpoint at cfg.URL.
func NewPusher(cfg PushConfig) *Pusher {
	return &Pusher{
		url:      cfg.URL + "/api/v1/write",
		client:   &http.Client{Timeout: cmp.Or(cfg.Timeout, DefaultTimeout)},
		prefix:   cfg.Prefix,
		job:      cfg.Job,
		instance: cfg.Instance,
	}
}

// Push gathers every metric registered with the source registry and sends
// them to the remote write endpoint as one request. Histograms and summaries
// are skipped, the pipeline only registers gauges and counters.
func (p *Pusher) Push(ctx context.Context, source *ScrapeRegistry) error {
	families, err := source.Gatherer().Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	series := p.familiesToTimeSeries(families, time.Now())
	if len(series) == 0 {
		return nil
	}

	payload, err := proto.Marshal(&prompb.WriteRequest{Timeseries: series})
	if err != nil {
		return fmt.Errorf("encode write request: %w", err)
	}
	return p.send(ctx, snappy.Encode(nil, payload))
}

func (p *Pusher) send(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		detail, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("remote write rejected with status %d: %s", resp.StatusCode, string(detail))
	}
	return nil
}

// familiesToTimeSeries flattens gathered metric families into remote write
// time series, one per label combination, all stamped with the same time.
func (p *Pusher) familiesToTimeSeries(families []*dto.MetricFamily, now time.Time) []prompb.TimeSeries {
	stamp := now.UnixMilli()

	var series []prompb.TimeSeries
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			value, ok := sampleValue(family.GetType(), metric)
			if !ok {
				continue
			}
			series = append(series, prompb.TimeSeries{
				Labels:  p.seriesLabels(family.GetName(), metric.GetLabel()),
				Samples: []prompb.Sample{{Value: value, Timestamp: stamp}},
			})
		}
	}
	return series
}

// seriesLabels assembles the label set of one series: the prefixed name,
// the job/instance identity, then the metric's own labels, sorted by name
// as the protocol requires.
func (p *Pusher) seriesLabels(name string, pairs []*dto.LabelPair) []prompb.Label {
	if p.prefix != "" {
		name = p.prefix + "_" + name
	}

	labels := make([]prompb.Label, 0, len(pairs)+3)
	labels = append(labels, prompb.Label{Name: "__name__", Value: name})
	if p.job != "" {
		labels = append(labels, prompb.Label{Name: "job", Value: p.job})
	}
	if p.instance != "" {
		labels = append(labels, prompb.Label{Name: "instance", Value: p.instance})
	}
	for _, pair := range pairs {
		labels = append(labels, prompb.Label{Name: pair.GetName(), Value: pair.GetValue()})
	}

	sort.Slice(labels, func(i, j int) bool { return labels[i].Name < labels[j].Name })
	return labels
}

// sampleValue extracts the sample value for metric types the pipeline uses.
func sampleValue(kind dto.MetricType, metric *dto.Metric) (float64, bool) {
	switch kind {
	case dto.MetricType_COUNTER:
		return metric.GetCounter().GetValue(), true
	case dto.MetricType_GAUGE:
		return metric.GetGauge().GetValue(), true
	case dto.MetricType_UNTYPED:
		return metric.GetUntyped().GetValue(), true
	default:
		return 0, false
	}
}
