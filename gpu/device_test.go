// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu_test

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/hal/gpu"
)

func TestLookup(t *testing.T) {
	drv, err := gpu.Lookup("soft")
	require.NoError(t, err)
	assert.Equal(t, "soft", drv.Name())

	_, err = gpu.Lookup("vulkan9")
	assert.ErrorIs(t, err, gpu.ErrNoDriver)
	assert.ErrorIs(t, err, gpu.ErrConfig)

	var found bool
	for _, d := range gpu.Drivers() {
		found = found || d.Name() == "soft"
	}
	assert.True(t, found)
}

func TestOpen(t *testing.T) {
	cfg := gpu.DefaultConfig()
	cfg.Driver = "soft"
	dev, err := gpu.Open("", cfg)
	require.NoError(t, err)
	assert.Equal(t, "soft", dev.Backend().Driver().Name())
	assert.NotNil(t, dev.Queue())
	assert.Zero(t, dev.LiveObjects())
	assert.NoError(t, dev.Err())
	require.NoError(t, dev.Destroy())
}

func TestDeviceDestroy(t *testing.T) {
	dev, _ := newDevice(t)

	buf, err := dev.CreateBuffer(&gpu.BufferDescriptor{Size: 64, Usage: gputypes.BufferUsageCopyDst})
	require.NoError(t, err)
	assert.Equal(t, 1, dev.LiveObjects())
	assert.ErrorIs(t, dev.Destroy(), gpu.ErrInUse)

	require.NoError(t, buf.Destroy())
	assert.ErrorIs(t, buf.Destroy(), gpu.ErrDestroyed)
	assert.Zero(t, dev.LiveObjects())
	require.NoError(t, dev.Destroy())
	assert.ErrorIs(t, dev.Destroy(), gpu.ErrDestroyed)

	_, err = dev.CreateBuffer(&gpu.BufferDescriptor{Size: 64, Usage: gputypes.BufferUsageCopyDst})
	assert.ErrorIs(t, err, gpu.ErrDestroyed)
	_, err = dev.Queue().OnSubmittedWorkDone()
	assert.ErrorIs(t, err, gpu.ErrDestroyed)
}

func TestDeviceLost(t *testing.T) {
	dev, drv := newDevice(t)
	buf, err := dev.CreateBuffer(&gpu.BufferDescriptor{Size: 16, Usage: gputypes.BufferUsageCopyDst})
	require.NoError(t, err)
	cb, err := dev.CreateCommandBuffer("fill", func(e *gpu.CommandEncoder) error {
		return e.FillBuffer(buf, 0, 16, 0xff)
	})
	require.NoError(t, err)

	select {
	case <-dev.Lost():
		t.Fatal("device lost before Lose")
	default:
	}

	removed := errors.New("removed")
	drv.Lose(removed)

	f, err := dev.Queue().Submit([]*gpu.CommandBuffer{cb}, nil)
	require.NoError(t, err)
	err = f.Wait(testContext(t))
	assert.ErrorIs(t, err, gpu.ErrDeviceLost)
	assert.ErrorIs(t, err, removed)

	select {
	case <-dev.Lost():
	default:
		t.Fatal("device not lost after failed submission")
	}
	assert.ErrorIs(t, dev.Err(), gpu.ErrDeviceLost)

	_, err = dev.CreateBuffer(&gpu.BufferDescriptor{Size: 16, Usage: gputypes.BufferUsageCopyDst})
	assert.ErrorIs(t, err, gpu.ErrDeviceLost)
	_, err = buf.Map(testContext(t), gputypes.MapModeRead, 0, 0)
	assert.ErrorIs(t, err, gpu.ErrDeviceLost)
	_, err = dev.Queue().Submit(nil, nil)
	assert.ErrorIs(t, err, gpu.ErrDeviceLost)

	// Destruction still works on a lost device.
	require.NoError(t, buf.Destroy())
}

func TestDeviceLostOnCreate(t *testing.T) {
	dev, drv := newDevice(t)
	drv.Lose(nil)

	_, err := dev.CreateSampler(&gpu.SamplerDescriptor{})
	assert.ErrorIs(t, err, gpu.ErrDeviceLost)
	<-dev.Lost()
	assert.ErrorIs(t, dev.Err(), gpu.ErrDeviceLost)
	assert.Zero(t, dev.LiveObjects())
}

func TestQueues(t *testing.T) {
	dev, _ := newDevice(t)

	assert.ErrorIs(t, dev.Queue().Destroy(), gpu.ErrInUse)

	q, err := dev.CreateQueue("transfer")
	require.NoError(t, err)
	assert.Equal(t, "transfer", q.Label())
	assert.Equal(t, 1, dev.LiveObjects())

	buf, err := dev.CreateBuffer(&gpu.BufferDescriptor{
		Size:  16,
		Usage: gputypes.BufferUsageCopyDst | gputypes.BufferUsageMapRead,
	})
	require.NoError(t, err)
	f, err := q.WriteBuffer(buf, 0, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)
	require.NoError(t, f.Wait(testContext(t)))
	require.NoError(t, q.WaitIdle(testContext(t)))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 0, 0, 0, 0, 0, 0, 0, 0}, mapRead(t, buf))

	require.NoError(t, q.Destroy())
	assert.ErrorIs(t, q.Destroy(), gpu.ErrDestroyed)
	_, err = q.WriteBuffer(buf, 0, []byte{1, 2, 3, 4})
	assert.ErrorIs(t, err, gpu.ErrDestroyed)
	require.NoError(t, buf.Destroy())
	assert.Zero(t, dev.LiveObjects())
}

func TestSubmitOrder(t *testing.T) {
	dev, _ := newDevice(t)
	buf, err := dev.CreateBuffer(&gpu.BufferDescriptor{
		Size:  4,
		Usage: gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc,
	})
	require.NoError(t, err)

	var fences []*gpu.Fence
	for i := range 8 {
		cb, err := dev.CreateCommandBuffer("", func(e *gpu.CommandEncoder) error {
			return e.FillBuffer(buf, 0, 4, byte(i+1))
		})
		require.NoError(t, err)
		f, err := dev.Queue().Submit([]*gpu.CommandBuffer{cb}, nil)
		require.NoError(t, err)
		fences = append(fences, f)
	}
	require.NoError(t, fences[len(fences)-1].Wait(testContext(t)))
	for _, f := range fences {
		select {
		case <-f.Done():
			assert.NoError(t, f.Err())
		default:
			t.Fatal("earlier submission still pending")
		}
	}
	assert.Equal(t, []byte{8, 8, 8, 8}, readBuffer(t, dev, buf, 4))
}

func TestErrorKinds(t *testing.T) {
	dev, _ := newDevice(t)

	_, err := dev.CreateBuffer(nil)
	assert.ErrorIs(t, err, gpu.ErrConfig)
	assert.ErrorIs(t, err, gpu.ErrNilDescriptor)
	assert.NotErrorIs(t, err, gpu.ErrResourceState)

	var e *gpu.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, gpu.KindConfig, e.Kind)
	assert.Equal(t, "Device.CreateBuffer", e.Op)

	buf, err := dev.CreateBuffer(&gpu.BufferDescriptor{Size: 8, Usage: gputypes.BufferUsageCopyDst})
	require.NoError(t, err)
	err = buf.Unmap()
	assert.ErrorIs(t, err, gpu.ErrResourceState)
	assert.ErrorIs(t, err, gpu.ErrNotMapped)
	require.ErrorAs(t, err, &e)
	assert.Equal(t, gpu.KindResourceState, e.Kind)
}
