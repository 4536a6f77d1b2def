package executor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/peripheral-bridge/bridge-go/pkg/bus"
	"github.com/peripheral-bridge/bridge-go/pkg/bus/mocks"
	"github.com/peripheral-bridge/bridge-go/pkg/wire"
)

// recordingDriver keeps a copy of every transaction and answers with a
// fixed pattern.
type recordingDriver struct {
	txs   [][]byte
	reply func(buf []byte)
	err   error
}

func (d *recordingDriver) Transfer(buf []byte) error {
	d.txs = append(d.txs, append([]byte(nil), buf...))
	if d.err != nil {
		return d.err
	}
	if d.reply != nil {
		d.reply(buf)
	}
	return nil
}

func TestExecuteReadScenario(t *testing.T) {
	drv := mocks.NewMockDriver(t)
	drv.EXPECT().Transfer(mock.MatchedBy(func(buf []byte) bool {
		return len(buf) == 3 && buf[0] == 0x85
	})).RunAndReturn(func(buf []byte) error {
		copy(buf, []byte{0x00, 0x42, 0x43})
		return nil
	}).Once()

	resp, err := Execute(wire.BusOperation{Operation: wire.OpRead, Address: 0x05, Data: []byte{0, 0}}, drv)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, wire.OpAck, resp.Operation)
	assert.Equal(t, uint32(0x05), resp.Address)
	assert.Equal(t, []byte{0x42, 0x43}, resp.Data)
	assert.Nil(t, resp.DelayUS)
}

func TestExecuteReadTransactionLayout(t *testing.T) {
	for _, addr := range []uint32{0x00, 0x05, 0x7F, 0x80, 0xFF, 0x1234} {
		for n := 0; n <= 24; n += 3 {
			drv := &recordingDriver{}
			data := make([]byte, n)
			for i := range data {
				data[i] = 0xEE
			}

			resp, err := Execute(wire.BusOperation{Operation: wire.OpRead, Address: addr, Data: data}, drv)
			require.NoError(t, err)
			require.Len(t, drv.txs, 1)

			tx := drv.txs[0]
			assert.Len(t, tx, n+1, "addr=%#x n=%d", addr, n)
			assert.Equal(t, byte(addr)|0x80, tx[0], "addr=%#x n=%d", addr, n)
			for _, b := range tx[1:] {
				assert.Equal(t, byte(0), b, "read content must not be clocked out")
			}
			require.NotNil(t, resp)
			assert.Len(t, resp.Data, n)
		}
	}
}

func TestExecuteWriteAndTransferLayout(t *testing.T) {
	payloads := [][]byte{{}, {0x01}, {0xDE, 0xAD, 0xBE, 0xEF}, make([]byte, 64)}

	for _, code := range []wire.Operation{wire.OpWrite, wire.OpTransfer} {
		for _, payload := range payloads {
			drv := &recordingDriver{reply: func(buf []byte) {
				for i := range buf {
					buf[i] = 0x55
				}
			}}
			op := wire.BusOperation{Operation: code, Address: 0x21, Data: payload}

			resp, err := Execute(op, drv)
			require.NoError(t, err)
			assert.Nil(t, resp, "%s produces no response", code)
			require.Len(t, drv.txs, 1)
			assert.Equal(t, byte(0x21), drv.txs[0][0])
			assert.Equal(t, payload, drv.txs[0][1:])
			assert.Equal(t, []byte(op.Data), payload, "payload must not be altered")
		}
	}
}

func TestExecuteWithoutDataHasNoBusActivity(t *testing.T) {
	for _, code := range []wire.Operation{wire.OpAck, wire.OpRead, wire.OpWrite, wire.OpTransfer} {
		t.Run(code.String(), func(t *testing.T) {
			drv := mocks.NewMockDriver(t)
			resp, err := Execute(wire.BusOperation{Operation: code, Address: 9}, drv)
			assert.NoError(t, err)
			assert.Nil(t, resp)
		})
	}
}

func TestExecuteAckWithDataHasNoBusActivity(t *testing.T) {
	drv := mocks.NewMockDriver(t)
	resp, err := Execute(wire.BusOperation{Operation: wire.OpAck, Address: 9, Data: []byte{1, 2}}, drv)
	assert.NoError(t, err)
	assert.Nil(t, resp)
}

func TestExecuteUnknownOperation(t *testing.T) {
	drv := mocks.NewMockDriver(t)
	resp, err := Execute(wire.BusOperation{Operation: wire.Operation(7), Address: 3, Data: []byte{1}}, drv)
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownOperation)

	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, UnknownOperation, pe.Kind)
	assert.Equal(t, wire.Operation(7), pe.Operation)
}

func TestExecuteBusError(t *testing.T) {
	boom := errors.New("nack")
	drv := mocks.NewMockDriver(t)
	drv.EXPECT().Transfer(mock.Anything).Return(boom).Once()

	resp, err := Execute(wire.BusOperation{Operation: wire.OpRead, Address: 1, Data: []byte{0}}, drv)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrBus)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrUnknownOperation)
}

func TestExecuteAgainstSimulatedPeripheral(t *testing.T) {
	sim := bus.NewSim()
	drv := bus.NewSPI(sim)

	_, err := Execute(wire.BusOperation{Operation: wire.OpWrite, Address: 0x05, Data: []byte{0x42, 0x43}}, drv)
	require.NoError(t, err)

	resp, err := Execute(wire.BusOperation{Operation: wire.OpRead, Address: 0x05, Data: []byte{0, 0}}, drv)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, []byte{0x42, 0x43}, resp.Data)
}
