package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kloia/kubevirt-api-client/internal/apierrors"
	"github.com/kloia/kubevirt-api-client/internal/codec"
	"github.com/kloia/kubevirt-api-client/internal/transport"
)

func newTestQueryClient(t *testing.T, handler http.HandlerFunc) *QueryClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tr, err := transport.New(transport.Credential{Token: "metrics-token"}, transport.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	client, err := NewQueryClient(tr, srv.URL+"/", zaptest.NewLogger(t))
	require.NoError(t, err)
	return client
}

func TestQuery(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		status      int
		expectLen   int
		expectErr   bool
		expectAPI   int
		expectCheck func(t *testing.T, samples []Sample)
	}{
		{
			name:      "empty result is no data",
			body:      `{"status":"success","data":{"resultType":"vector","result":[]}}`,
			status:    200,
			expectLen: 0,
		},
		{
			name:      "missing data is no data",
			body:      `{"status":"success"}`,
			status:    200,
			expectLen: 0,
		},
		{
			name:      "vector result",
			status:    200,
			expectLen: 2,
			body: `{"status":"success","data":{"resultType":"vector","result":[
				{"metric":{"namespace":"dev","pod":"virt-launcher-fedora-vm-x7k2p"},"value":[1700000000.5,"0.25"]},
				{"metric":{"namespace":"prod","pod":"virt-launcher-db"},"value":[1700000000,"NaN"]}]}}`,
			expectCheck: func(t *testing.T, samples []Sample) {
				assert.Equal(t, "dev", samples[0].Labels["namespace"])
				assert.Equal(t, 0.25, samples[0].Value)
				assert.Equal(t, time.Unix(1700000000, 500000000).UTC(), samples[0].Timestamp)
			},
		},
		{
			name:      "scalar result is one unlabelled sample",
			body:      `{"status":"success","data":{"resultType":"scalar","result":[1700000000,"1"]}}`,
			status:    200,
			expectLen: 1,
			expectCheck: func(t *testing.T, samples []Sample) {
				assert.Empty(t, samples[0].Labels)
				assert.Equal(t, 1.0, samples[0].Value)
				assert.Equal(t, time.Unix(1700000000, 0).UTC(), samples[0].Timestamp)
			},
		},
		{
			name:      "string result keeps its text",
			body:      `{"status":"success","data":{"resultType":"string","result":[1700000000.25,"kubevirt"]}}`,
			status:    200,
			expectLen: 1,
			expectCheck: func(t *testing.T, samples []Sample) {
				assert.Equal(t, "kubevirt", samples[0].Text)
				assert.Zero(t, samples[0].Value)
				assert.Equal(t, time.Unix(1700000000, 250000000).UTC(), samples[0].Timestamp)
			},
		},
		{
			name:      "malformed scalar",
			body:      `{"status":"success","data":{"resultType":"scalar","result":[1700000000]}}`,
			status:    200,
			expectErr: true,
		},
		{
			name:      "non-200 is an API error",
			body:      `{"status":"error","errorType":"bad_data","error":"parse error"}`,
			status:    400,
			expectErr: true,
			expectAPI: 400,
		},
		{
			name:      "error status in a 200 body",
			body:      `{"status":"error","errorType":"execution","error":"query timed out"}`,
			status:    200,
			expectErr: true,
		},
		{
			name:      "malformed body",
			body:      `<html>`,
			status:    200,
			expectErr: true,
		},
		{
			name:      "value that is not a number",
			body:      `{"status":"success","data":{"result":[{"metric":{},"value":[1,"abc"]}]}}`,
			status:    200,
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestQueryClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/query", r.URL.Path)
				assert.Equal(t, "up", r.URL.Query().Get("query"))
				assert.Equal(t, "Bearer metrics-token", r.Header.Get("Authorization"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			samples, err := client.Query(context.Background(), "up", nil)
			if tt.expectErr {
				require.Error(t, err)
				if tt.expectAPI != 0 {
					assert.Equal(t, tt.expectAPI, apierrors.StatusCode(err))
				}
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, samples)
			assert.Len(t, samples, tt.expectLen)
			if tt.expectCheck != nil {
				tt.expectCheck(t, samples)
			}
		})
	}
}

func TestQueryDecodeErrorKind(t *testing.T) {
	client := newTestQueryClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	_, err := client.Query(context.Background(), "up", nil)
	assert.True(t, errors.Is(err, codec.ErrDecode))
}

func TestMetricNames(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		prefix    string
		expected  []string
		expectErr bool
	}{
		{
			name:     "filtered by prefix and sorted",
			status:   200,
			body:     `{"status":"success","data":["up","kubevirt_vmi_memory_resident_bytes","kubevirt_vmi_cpu_usage_seconds_total","kubevirt_vm_info"]}`,
			prefix:   "kubevirt_vmi",
			expected: []string{"kubevirt_vmi_cpu_usage_seconds_total", "kubevirt_vmi_memory_resident_bytes"},
		},
		{
			name:     "empty prefix returns all",
			status:   200,
			body:     `{"status":"success","data":["up","node_load1"]}`,
			expected: []string{"node_load1", "up"},
		},
		{
			name:     "no data",
			status:   200,
			body:     `{"status":"success","data":null}`,
			expected: []string{},
		},
		{
			name:      "forbidden",
			status:    403,
			body:      `forbidden`,
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestQueryClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/label/__name__/values", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			names, err := client.MetricNames(context.Background(), tt.prefix)
			if tt.expectErr {
				require.Error(t, err)
				assert.Equal(t, tt.status, apierrors.StatusCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, names)
		})
	}
}

func TestQueryRange(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	client := newTestQueryClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/query_range", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "60", q.Get("step"))
		assert.Equal(t, "1740823200.000", q.Get("start"))
		_, _ = w.Write([]byte(`{"status":"success","data":{"resultType":"matrix","result":[
			{"metric":{"name":"fedora-vm"},"values":[[1740823200,"1"],[1740823260,"2"],[1740823320,"3"]]}]}}`))
	})

	samples, err := client.Query(context.Background(), "kubevirt_vmi_memory_resident_bytes", &TimeRange{
		Start: start,
		End:   start.Add(2 * time.Minute),
		Step:  time.Minute,
	})
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, 3.0, samples[2].Value)
	assert.Equal(t, "fedora-vm", samples[1].Labels["name"])

	_, err = client.Query(context.Background(), "up", &TimeRange{Start: start, End: start.Add(-time.Minute), Step: time.Minute})
	assert.Error(t, err)
}

func TestQueryValidation(t *testing.T) {
	_, err := NewQueryClient(nil, "prometheus:9090", nil)
	assert.Error(t, err)

	client := newTestQueryClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err = client.Query(context.Background(), "  ", nil)
	assert.Error(t, err)
}

func TestIndex(t *testing.T) {
	samples := []Sample{
		{Labels: map[string]string{"namespace": "dev", "pod": "virt-launcher-a"}, Value: 1},
		{Labels: map[string]string{"namespace": "dev"}, Value: 2},
		{Labels: map[string]string{"namespace": "prod", "pod": "virt-launcher-a"}, Value: 3},
	}

	idx := Index(samples, "namespace", "pod")
	assert.Len(t, idx, 2)
	assert.Equal(t, 1.0, idx[Key("dev", "virt-launcher-a")].Value)
	assert.Equal(t, 3.0, idx[Key("prod", "virt-launcher-a")].Value)
}
