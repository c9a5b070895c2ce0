package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge/rrc-policy/internal/metrics"
	"github.com/cartridge/rrc-policy/internal/middleware"
	"github.com/cartridge/rrc-policy/internal/obs"
	"github.com/cartridge/rrc-policy/internal/policy"
)

// stubPolicy echoes the first two observation values. It fails with an
// internal error when the first value is negative and treats 999 in the
// second slot as a non-finite reading.
type stubPolicy struct {
	resets int
}

func (p *stubPolicy) Reset() { p.resets++ }

func (p *stubPolicy) GetAction(observation []float64) ([]float64, error) {
	if len(observation) != 3 {
		return nil, fmt.Errorf("%w: got %d, want 3", obs.ErrObservationDim, len(observation))
	}
	if observation[1] == 999 {
		return nil, fmt.Errorf("%w: index 1 is +Inf", obs.ErrObservationValue)
	}
	if observation[0] < 0 {
		return nil, errors.New("forward pass: boom")
	}
	return observation[:2], nil
}

func (p *stubPolicy) Info() policy.Info {
	return policy.Info{Kind: policy.KindLatent, ObservationDim: 3, ActionDim: 2, MaxAction: 0.397}
}

func newTestServer() (*Server, *stubPolicy) {
	logger := zerolog.New(io.Discard)
	stub := &stubPolicy{}
	return NewServer(policy.NewSynchronized(stub), metrics.NewCollector(logger), logger), stub
}

func postAction(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/action", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}

func TestAction(t *testing.T) {
	server, _ := newTestServer()
	h := server.Routes()

	res := postAction(t, h, `{"observation": [0.1, 0.2, 0.3]}`)
	require.Equal(t, http.StatusOK, res.Code)
	assert.NotEmpty(t, res.Header().Get(middleware.CorrelationHeader))

	var out ActionResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	assert.Equal(t, []float64{0.1, 0.2}, out.Action)
	assert.Equal(t, int64(0), out.Step)

	res = postAction(t, h, `{"observation": [0.1, 0.2, 0.3]}`)
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	assert.Equal(t, int64(1), out.Step)
}

func TestAction_Errors(t *testing.T) {
	server, _ := newTestServer()
	h := server.Routes()

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed", `{"observation": [`, http.StatusBadRequest},
		{"missing observation", `{}`, http.StatusBadRequest},
		{"wrong dimension", `{"observation": [1, 2]}`, http.StatusBadRequest},
		{"non-finite value", `{"observation": [1, 999, 3]}`, http.StatusBadRequest},
		{"overflowing value", `{"observation": [1, 1e400, 3]}`, http.StatusBadRequest},
		{"model failure", `{"observation": [-1, 2, 3]}`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := postAction(t, h, tt.body)
			assert.Equal(t, tt.status, res.Code)

			var body map[string]string
			require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/action", bytes.NewReader([]byte("x")))
	req.Header.Set("Content-Type", "text/plain")
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, res.Code)
}

func TestReset(t *testing.T) {
	server, stub := newTestServer()
	h := server.Routes()

	postAction(t, h, `{"observation": [0.1, 0.2, 0.3]}`)
	res := httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/api/v1/reset", nil))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, 1, stub.resets)

	var body map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.EqualValues(t, 1, body["previous_steps"])

	res = postAction(t, h, `{"observation": [0.1, 0.2, 0.3]}`)
	var out ActionResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	assert.Equal(t, int64(0), out.Step)
}

func TestSpecAndHealth(t *testing.T) {
	server, _ := newTestServer()
	h := server.Routes()

	res := httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/v1/spec", nil))
	require.Equal(t, http.StatusOK, res.Code)
	var info policy.Info
	require.NoError(t, json.NewDecoder(res.Body).Decode(&info))
	assert.Equal(t, 2, info.ActionDim)
	assert.Equal(t, 0.397, info.MaxAction)

	res = httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, res.Code)
}
