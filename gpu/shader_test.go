// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/hal/gpu"
)

func TestCreateShaderModule(t *testing.T) {
	dev, _ := newDevice(t)
	for _, x := range [...]struct {
		name string
		code  []byte
		spirv bool
		err   error
	}{
		{"SPIR-V", shaderCode, true, nil},
		{"opaque", []byte{1, 2, 3}, false, nil},
		{"empty", nil, false, gpu.ErrZeroSize},
		{"misaligned SPIR-V", append(append([]byte(nil), shaderCode...), 0), true, gpu.ErrAlignment},
	} {
		t.Run(x.name, func(t *testing.T) {
			m, err := dev.CreateShaderModule(&gpu.ShaderModuleDescriptor{Code: x.code})
			if x.err != nil {
				assert.ErrorIs(t, err, x.err)
				assert.ErrorIs(t, err, gpu.ErrConfig)
				assert.Nil(t, m)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(x.code), m.CodeSize())
			assert.Equal(t, x.spirv, gpu.IsSPIRV(x.code))
			require.NoError(t, m.Destroy())
		})
	}
	_, err := dev.CreateShaderModule(nil)
	assert.ErrorIs(t, err, gpu.ErrNilDescriptor)
	assert.Zero(t, dev.LiveObjects())
}
