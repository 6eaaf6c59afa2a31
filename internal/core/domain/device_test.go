package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDeltaNotifiesInOrder(t *testing.T) {

	require := require.New(t)

	d := NewDeviceModel(DeviceInfo{Id: "a"}, nil, map[string]string{"x": "1"})
	var calls []string
	cancelFirst := d.Observe(func(s Snapshot) { calls = append(calls, "first:"+s["x"]) })
	d.Observe(func(s Snapshot) { calls = append(calls, "second:"+s["x"]) })

	before := d.Snapshot()
	d.ApplyDelta(map[string]string{"x": "2", "y": "3"})
	require.Equal([]string{"first:2", "second:2"}, calls)
	require.Equal("1", before["x"])
	require.Equal(Snapshot{"x": "2", "y": "3"}, d.Snapshot())

	cancelFirst()
	d.ApplyDelta(map[string]string{"x": "4"})
	require.Equal([]string{"first:2", "second:2", "second:4"}, calls)

	// empty batches are ignored
	d.ApplyDelta(nil)
	require.Len(calls, 3)
}

func TestWriteAttributesNeedsWriter(t *testing.T) {

	require := require.New(t)

	d := NewDeviceModel(DeviceInfo{Id: "a"}, nil, nil)
	require.ErrorIs(d.WriteAttributes(context.Background(), map[string]any{"x": 1}), ErrNoCommandWriter)
}

func TestComparisonTable(t *testing.T) {

	assert := assert.New(t)

	table := NewComparisonTable([]ListOption{{Code: "1", Label: "High"}, {Code: "2", Label: "Low"}})
	label, ok := table.Label("2")
	assert.True(ok)
	assert.Equal("Low", label)
	code, ok := table.Code("High")
	assert.True(ok)
	assert.Equal("1", code)
	_, ok = table.Label("9")
	assert.False(ok)
	assert.Equal([]string{"High", "Low"}, table.Labels())
}

func TestEntityUniqueId(t *testing.T) {

	assert := assert.New(t)

	assert.Equal("haier_dc330d0000aa_targettemp", EntityUniqueId("DC330D0000AA", "targetTemp"))
	assert.Equal("haier_a_b_c_d", EntityUniqueId("a-b", "c.d"))
}
