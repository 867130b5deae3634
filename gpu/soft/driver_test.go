// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package soft

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/hal/gpu"
)

func TestRegistered(t *testing.T) {
	drv, err := gpu.Lookup(driverName)
	require.NoError(t, err)
	assert.IsType(t, &Driver{}, drv)
}

func TestOpen(t *testing.T) {
	d := New()
	be, err := d.Open()
	require.NoError(t, err)
	defer d.Close()
	again, err := d.Open()
	require.NoError(t, err)
	assert.Same(t, be, again)

	assert.Equal(t, gpu.FeatureTimestampQuery|gpu.FeatureIndirect, be.Features())
	lim := be.Limits()
	assert.Equal(t, uint32(8), lim.MaxBindGroups)
	assert.Equal(t, uint64(1<<30), lim.MaxBufferSize)
	assert.Equal(t, gpu.DefaultLimits().MaxTextureDimension2D, lim.MaxTextureDimension2D)
	assert.Same(t, d, be.Driver())
}

func TestLose(t *testing.T) {
	d := New()
	_, err := d.Open()
	require.NoError(t, err)
	defer d.Close()
	require.NoError(t, d.check())

	first := errors.New("first")
	d.Lose(first)
	d.Lose(errors.New("second"))
	err = d.check()
	assert.ErrorIs(t, err, gpu.ErrDeviceLost)
	assert.ErrorIs(t, err, first)
	assert.NotContains(t, err.Error(), "second")

	_, err = d.NewBuffer(&gpu.BufferDescriptor{Size: 4})
	assert.ErrorIs(t, err, gpu.ErrDeviceLost)
	_, err = d.NewSampler(&gpu.SamplerDescriptor{})
	assert.ErrorIs(t, err, gpu.ErrDeviceLost)
	assert.ErrorIs(t, d.Execute(nil), gpu.ErrDeviceLost)
}

func TestTimestamp(t *testing.T) {
	d := New()
	_, err := d.Open()
	require.NoError(t, err)
	defer d.Close()
	t0 := d.timestamp()
	time.Sleep(time.Millisecond)
	assert.Greater(t, d.timestamp(), t0)
}
