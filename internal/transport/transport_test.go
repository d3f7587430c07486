package transport

import (
	"context"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSendSetsHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(`{"kind":"Status"}`))
	}))
	defer srv.Close()

	tr, err := New(Credential{Token: "sha256~secret"}, WithUserAgent("kvctl-test"))
	require.NoError(t, err)

	hdr := http.Header{}
	hdr.Set("Content-Type", "application/merge-patch+json")
	resp, err := tr.Send(context.Background(), http.MethodPatch, srv.URL+"/apis/kubevirt.io/v1", hdr, []byte(`{}`))
	require.NoError(t, err, "a non-2xx status must not be a transport error")

	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, `{"kind":"Status"}`, string(resp.Body))
	assert.Equal(t, "Bearer sha256~secret", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Accept"))
	assert.Equal(t, "application/merge-patch+json", got.Get("Content-Type"))
	assert.Equal(t, "kvctl-test", got.Get("User-Agent"))
}

func TestNewValidation(t *testing.T) {
	_, err := New(Credential{})
	assert.Error(t, err, "token is required")

	_, err = New(Credential{Token: "t"}, WithTimeout(0))
	assert.Error(t, err)

	_, err = New(Credential{Token: "t", Trust: TrustPolicy{Insecure: true, CAData: []byte("x")}})
	assert.Error(t, err, "insecure and a CA bundle are mutually exclusive")
}

func TestCredentialStringRedactsToken(t *testing.T) {
	c := Credential{Token: "sha256~topsecret"}
	assert.NotContains(t, c.String(), "topsecret")
}

func TestTrustPolicy(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	caPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})

	t.Run("default verification rejects unknown CA", func(t *testing.T) {
		tr, err := New(Credential{Token: "t"})
		require.NoError(t, err)

		_, err = tr.Send(context.Background(), http.MethodGet, srv.URL, nil, nil)
		require.Error(t, err)
		assert.True(t, IsTLS(err), "expected tls error, got %v", err)
	})

	t.Run("custom CA bundle verifies", func(t *testing.T) {
		tr, err := New(Credential{Token: "t", Trust: TrustPolicy{CAData: caPEM}})
		require.NoError(t, err)

		resp, err := tr.Send(context.Background(), http.MethodGet, srv.URL, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("explicit insecure skips verification and warns once", func(t *testing.T) {
		insecureWarning = sync.Once{}
		core, logs := observer.New(zapcore.WarnLevel)
		logger := zap.New(core)

		for i := 0; i < 3; i++ {
			tr, err := New(Credential{Token: "t", Trust: TrustPolicy{Insecure: true}}, WithLogger(logger))
			require.NoError(t, err)

			resp, err := tr.Send(context.Background(), http.MethodGet, srv.URL, nil, nil)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		}
		assert.Equal(t, 1, logs.Len())
	})

	t.Run("insecure transport without a logger does not swallow the warning", func(t *testing.T) {
		insecureWarning = sync.Once{}

		_, err := New(Credential{Token: "t", Trust: TrustPolicy{Insecure: true}})
		require.NoError(t, err)

		core, logs := observer.New(zapcore.WarnLevel)
		_, err = New(Credential{Token: "t", Trust: TrustPolicy{Insecure: true}}, WithLogger(zap.New(core)))
		require.NoError(t, err)

		require.Equal(t, 1, logs.Len())
		assert.Contains(t, logs.All()[0].Message, "TLS certificate verification is disabled")
	})
}

func TestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	tr, err := New(Credential{Token: "t"}, WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	_, err = tr.Send(context.Background(), http.MethodGet, srv.URL, nil, nil)
	require.Error(t, err)
	assert.True(t, IsTimeout(err), "expected timeout, got %v", err)
}

func TestConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	tr, err := New(Credential{Token: "t"})
	require.NoError(t, err)

	_, err = tr.Send(context.Background(), http.MethodGet, url, nil, nil)
	require.Error(t, err)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, KindConnection, te.Kind)
	assert.Equal(t, http.MethodGet, te.Method)
}

func TestCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	tr, err := New(Credential{Token: "t"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = tr.Send(ctx, http.MethodGet, srv.URL, nil, nil)
	require.Error(t, err)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, KindCancelled, te.Kind)
}
