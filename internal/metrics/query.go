package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	utiljson "k8s.io/apimachinery/pkg/util/json"

	"github.com/kloia/kubevirt-api-client/internal/apierrors"
	"github.com/kloia/kubevirt-api-client/internal/codec"
	"github.com/kloia/kubevirt-api-client/internal/kubernetes"
)

const (
	instantQueryPath = "/api/v1/query"
	rangeQueryPath   = "/api/v1/query_range"
	metricNamesPath  = "/api/v1/label/__name__/values"
)

// Sample is one value of a time series. Samples are attached to report rows,
// never written back into a resource.
type Sample struct {
	Labels    map[string]string
	Timestamp time.Time
	Value     float64
	// Text holds the raw value of a string result
	Text string `json:",omitempty"`
}

// TimeRange selects a range query
type TimeRange struct {
	Start time.Time
	End   time.Time
	Step  time.Duration
}

func (r TimeRange) validate() error {
	if r.Step <= 0 {
		return fmt.Errorf("range step must be positive, got %v", r.Step)
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("range end %s is before start %s", r.End.Format(time.RFC3339), r.Start.Format(time.RFC3339))
	}
	return nil
}

// QueryClient queries a Prometheus-compatible HTTP API
type QueryClient struct {
	sender kubernetes.Sender
	base   string
	logger *zap.Logger
}

// NewQueryClient creates a QueryClient for the metrics API at base
func NewQueryClient(sender kubernetes.Sender, base string, logger *zap.Logger) (*QueryClient, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid metrics url %q: %w", base, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("metrics url %q must include scheme and host", base)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryClient{sender: sender, base: strings.TrimRight(base, "/"), logger: logger}, nil
}

type queryResponse struct {
	Status    string `json:"status"`
	ErrorType string `json:"errorType,omitempty"`
	Error     string `json:"error,omitempty"`
	Data      *struct {
		ResultType string          `json:"resultType"`
		Result     json.RawMessage `json:"result"`
	} `json:"data"`
}

type seriesResult struct {
	Metric map[string]string `json:"metric"`
	Value  []interface{}     `json:"value,omitempty"`
	Values [][]interface{}   `json:"values,omitempty"`
}

// Query evaluates expr. With a nil range it is an instant query; otherwise
// every point of every series in the range is returned. No data is an empty
// slice; a non-200 answer is an *apierrors.APIError.
func (c *QueryClient) Query(ctx context.Context, expr string, tr *TimeRange) ([]Sample, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("query expression is empty")
	}

	params := url.Values{}
	params.Set("query", expr)
	path := instantQueryPath
	if tr != nil {
		if err := tr.validate(); err != nil {
			return nil, err
		}
		path = rangeQueryPath
		params.Set("start", formatTime(tr.Start))
		params.Set("end", formatTime(tr.End))
		params.Set("step", strconv.FormatFloat(tr.Step.Seconds(), 'f', -1, 64))
	}
	u := c.base + path + "?" + params.Encode()

	resp, err := c.sender.Send(ctx, http.MethodGet, u, nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apierrors.New(http.MethodGet, c.base+path, resp.StatusCode, resp.Body)
	}

	samples, err := decodeSamples(resp.Body)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Metrics query", zap.String("query", expr), zap.Bool("range", tr != nil), zap.Int("samples", len(samples)))
	return samples, nil
}

type labelValuesResponse struct {
	Status    string   `json:"status"`
	ErrorType string   `json:"errorType,omitempty"`
	Error     string   `json:"error,omitempty"`
	Data      []string `json:"data"`
}

// MetricNames lists the metric names known to the server that start with
// prefix, sorted. An empty prefix returns all of them.
func (c *QueryClient) MetricNames(ctx context.Context, prefix string) ([]string, error) {
	u := c.base + metricNamesPath
	resp, err := c.sender.Send(ctx, http.MethodGet, u, nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apierrors.New(http.MethodGet, u, resp.StatusCode, resp.Body)
	}

	var lr labelValuesResponse
	if err := utiljson.Unmarshal(resp.Body, &lr); err != nil {
		return nil, &codec.DecodeError{Reason: "malformed label values response", Err: err}
	}
	if lr.Status == "error" {
		return nil, fmt.Errorf("metrics query failed: %s: %s", lr.ErrorType, lr.Error)
	}

	names := []string{}
	for _, n := range lr.Data {
		if strings.HasPrefix(n, prefix) {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	c.logger.Debug("Listed metric names", zap.String("prefix", prefix), zap.Int("count", len(names)))
	return names, nil
}

func formatTime(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', 3, 64)
}

func decodeSamples(body []byte) ([]Sample, error) {
	var qr queryResponse
	if err := utiljson.Unmarshal(body, &qr); err != nil {
		return nil, &codec.DecodeError{Reason: "malformed metrics response", Err: err}
	}
	if qr.Status == "error" {
		return nil, fmt.Errorf("metrics query failed: %s: %s", qr.ErrorType, qr.Error)
	}

	samples := []Sample{}
	if qr.Data == nil || len(qr.Data.Result) == 0 || string(qr.Data.Result) == "null" {
		return samples, nil
	}

	switch qr.Data.ResultType {
	case "scalar", "string":
		var point []interface{}
		if err := utiljson.Unmarshal(qr.Data.Result, &point); err != nil {
			return nil, &codec.DecodeError{Reason: "malformed metrics response", Err: err}
		}
		s, err := parseScalar(point, qr.Data.ResultType == "string")
		if err != nil {
			return nil, &codec.DecodeError{Reason: qr.Data.ResultType + " result", Err: err}
		}
		return append(samples, s), nil
	}

	var series []seriesResult
	if err := utiljson.Unmarshal(qr.Data.Result, &series); err != nil {
		return nil, &codec.DecodeError{Reason: "malformed metrics response", Err: err}
	}
	for i, sr := range series {
		labels := sr.Metric
		if labels == nil {
			labels = map[string]string{}
		}
		if sr.Value != nil {
			s, err := parsePoint(sr.Value, labels)
			if err != nil {
				return nil, &codec.DecodeError{Reason: fmt.Sprintf("result[%d].value", i), Err: err}
			}
			samples = append(samples, s)
		}
		for j, point := range sr.Values {
			s, err := parsePoint(point, labels)
			if err != nil {
				return nil, &codec.DecodeError{Reason: fmt.Sprintf("result[%d].values[%d]", i, j), Err: err}
			}
			samples = append(samples, s)
		}
	}
	return samples, nil
}

// parseScalar turns a scalar or string result into one unlabelled sample.
// A non-numeric string keeps a zero Value and only carries Text.
func parseScalar(point []interface{}, text bool) (Sample, error) {
	if !text {
		return parsePoint(point, map[string]string{})
	}
	if len(point) != 2 {
		return Sample{}, fmt.Errorf("expected [timestamp, value], got %d elements", len(point))
	}
	ts, err := parseTimestamp(point[0])
	if err != nil {
		return Sample{}, err
	}
	raw, ok := point[1].(string)
	if !ok {
		return Sample{}, fmt.Errorf("value is %T, not a string", point[1])
	}
	s := Sample{Labels: map[string]string{}, Timestamp: ts, Text: raw}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		s.Value = v
	}
	return s, nil
}

// parsePoint decodes a [unixSeconds, "value"] pair
func parsePoint(point []interface{}, labels map[string]string) (Sample, error) {
	if len(point) != 2 {
		return Sample{}, fmt.Errorf("expected [timestamp, value], got %d elements", len(point))
	}

	ts, err := parseTimestamp(point[0])
	if err != nil {
		return Sample{}, err
	}

	raw, ok := point[1].(string)
	if !ok {
		return Sample{}, fmt.Errorf("value is %T, not a string", point[1])
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Sample{}, fmt.Errorf("value %q: %w", raw, err)
	}

	return Sample{Labels: labels, Timestamp: ts, Value: val}, nil
}

func parseTimestamp(v interface{}) (time.Time, error) {
	var ts float64
	switch t := v.(type) {
	case float64:
		ts = t
	case int64:
		ts = float64(t)
	default:
		return time.Time{}, fmt.Errorf("timestamp is %T", v)
	}
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}

// Index maps the values of keys, joined with "/", to the sample. Later samples
// overwrite earlier ones; samples missing any key are skipped.
func Index(samples []Sample, keys ...string) map[string]Sample {
	out := make(map[string]Sample, len(samples))
	for _, s := range samples {
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			v, ok := s.Labels[k]
			if !ok {
				parts = nil
				break
			}
			parts = append(parts, v)
		}
		if parts == nil && len(keys) > 0 {
			continue
		}
		out[strings.Join(parts, "/")] = s
	}
	return out
}

// Key joins label values the same way Index does
func Key(values ...string) string {
	return strings.Join(values, "/")
}
