package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	subject  string
	data     [][]byte
	err      error
	flushed  bool
	closed   bool
	flushErr error
}

func (c *fakeConn) Publish(subj string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.subject = subj
	c.data = append(c.data, data)
	return nil
}

func (c *fakeConn) Flush() error {
	c.flushed = true
	return c.flushErr
}

func (c *fakeConn) Close() { c.closed = true }

func TestNew_NoURL(t *testing.T) {
	p, err := New("", "")
	require.NoError(t, err)
	assert.IsType(t, Nop{}, p)
	assert.NoError(t, p.Publish(context.Background(), &Alert{}))
	assert.NoError(t, p.Close())
}

func TestNATSPublisher(t *testing.T) {
	c := &fakeConn{}
	p := newNATSPublisher(c, "")

	a := NewAlert(Alert{SegmentKey: "SP_116_520", UF: "SP", BR: 116, KM: 525, RiskScore: 91, RiskLevel: "critico"})
	assert.NotEmpty(t, a.ID)
	require.NoError(t, p.Publish(context.Background(), a))
	assert.Equal(t, DefaultSubject, c.subject)
	require.Len(t, c.data, 1)

	var got Alert
	require.NoError(t, json.Unmarshal(c.data[0], &got))
	assert.Equal(t, "SP_116_520", got.SegmentKey)
	assert.Equal(t, 91.0, got.RiskScore)

	require.NoError(t, p.Close())
	assert.True(t, c.flushed)
	assert.True(t, c.closed)
}

func TestNATSPublisher_Errors(t *testing.T) {
	c := &fakeConn{err: errors.New("disconnected"), flushErr: errors.New("timeout")}
	p := newNATSPublisher(c, "alerts")

	assert.Error(t, p.Publish(context.Background(), &Alert{}))
	assert.Error(t, p.Close())
	assert.True(t, c.closed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, &Alert{}), context.Canceled)
}
