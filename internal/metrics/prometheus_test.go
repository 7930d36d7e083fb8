package metrics

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/brettbedarf/bastion"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "ok"},
		{"sentinel", bastion.ErrOutOfRange, "out_of_range"},
		{"wrapped", bastion.NewError("open", "a", bastion.ErrAlreadyOpen), "already_open"},
		{"fmt wrapped", fmt.Errorf("ctx: %w", bastion.ErrCannotRemove), "cannot_remove"},
		{"unknown", errors.New("disk on fire"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Result(tt.err))
		})
	}
}

func TestPrometheusCollector_RecordOp(t *testing.T) {
	t.Parallel()

	c, err := NewPrometheusCollector()
	require.NoError(t, err)

	c.RecordOp("open", nil)
	c.RecordOp("open", nil)
	c.RecordOp("open", bastion.ErrAlreadyOpen)
	c.RecordOp("read", bastion.ErrOutOfRange)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.ops.WithLabelValues("open", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ops.WithLabelValues("open", "already_open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ops.WithLabelValues("read", "out_of_range")))
}

func TestPrometheusCollector_SetOpenSessions(t *testing.T) {
	t.Parallel()

	c, err := NewPrometheusCollector()
	require.NoError(t, err)

	c.SetOpenSessions(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(c.openSessions))
	c.SetOpenSessions(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.openSessions))
}

func TestPrometheusCollector_Handler(t *testing.T) {
	t.Parallel()

	c, err := NewPrometheusCollector()
	require.NoError(t, err)
	c.RecordOp("mkdir", nil)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `bastion_ops_total{op="mkdir",result="ok"} 1`)
	assert.Contains(t, string(body), "bastion_open_sessions 0")
}
