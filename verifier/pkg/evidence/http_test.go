package evidence

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
	"github.com/tangle-network/layerzero-dvn-template/verifier"
	"github.com/tangle-network/layerzero-dvn-template/verifier/pkg/monitoring"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg verifier.EvidenceConfig) (*HTTPClient, *monitoring.FakeDVNMonitoring, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg.URL = srv.URL + "/api/v1"
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 1000
	}
	mon := monitoring.NewFakeDVNMonitoring()
	c, err := NewHTTPClient(cfg, mon.Metrics(), logger.Test(t))
	require.NoError(t, err)
	return c, mon, &hits
}

func TestHTTPClient_Evidence(t *testing.T) {
	id := protocol.RandomBytes32()
	c, mon, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/evidence/"+id.String(), r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"evidence":"0xdeadbeef"}`))
	}, verifier.EvidenceConfig{})

	ev, err := c.Evidence(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, ev)
	require.Equal(t, 1, mon.Fake.Count("evidence_request"))
}

func TestHTTPClient_Statuses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"not found", http.StatusNotFound, "", ErrNotReady},
		{"empty evidence", http.StatusOK, `{"evidence":"0x"}`, ErrNotReady},
		{"bad request", http.StatusBadRequest, "", ErrUnknownResponse},
		{"server error", http.StatusInternalServerError, "", ErrUnknownResponse},
		{"malformed body", http.StatusOK, `{"evidence":`, ErrUnknownResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, verifier.EvidenceConfig{})

			_, err := c.Evidence(context.Background(), protocol.RandomBytes32())
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestHTTPClient_CoolDownAfterRateLimit(t *testing.T) {
	c, _, hits := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	}, verifier.EvidenceConfig{})

	_, err := c.Evidence(context.Background(), protocol.RandomBytes32())
	require.ErrorIs(t, err, ErrRateLimit)
	require.True(t, IsTemporary(err))

	// the second request is dropped without reaching the server
	_, err = c.Evidence(context.Background(), protocol.RandomBytes32())
	require.ErrorIs(t, err, ErrRateLimit)
	require.Equal(t, int32(1), hits.Load())

	cooling, remaining := c.inCoolDownPeriod()
	require.True(t, cooling)
	require.Greater(t, remaining, 50*time.Second)
}

func TestHTTPClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, verifier.EvidenceConfig{RequestTimeout: "20ms"})

	_, err := c.Evidence(context.Background(), protocol.RandomBytes32())
	require.ErrorIs(t, err, ErrTimeout)
}

func TestNewHTTPClient_InvalidConfig(t *testing.T) {
	_, err := NewHTTPClient(verifier.EvidenceConfig{URL: "not a url"}, nil, logger.Test(t))
	require.Error(t, err)

	_, err = NewHTTPClient(verifier.EvidenceConfig{URL: "http://localhost", CoolDown: "soon"}, nil, logger.Test(t))
	require.ErrorContains(t, err, "cool_down")
}

func TestStatic(t *testing.T) {
	id := protocol.RandomBytes32()

	s := NewStatic(nil)
	_, err := s.Evidence(context.Background(), id)
	require.ErrorIs(t, err, ErrNotReady)

	s.Set(id, []byte{0x01})
	ev, err := s.Evidence(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01}, ev)

	withFallback := NewStatic([]byte{0x02})
	ev, err = withFallback.Evidence(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, []byte{0x02}, ev)
}
