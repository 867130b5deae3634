// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/hal/gpu"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() { gpu.SetLogger(nil) })
	var out, log bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&log)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestDrivers(t *testing.T) {
	out, err := run(t, "drivers")
	require.NoError(t, err)
	assert.Contains(t, out, "soft\n")
}

func TestLimits(t *testing.T) {
	out, err := run(t, "limits")
	require.NoError(t, err)
	assert.Contains(t, out, "driver: soft\n")
	assert.Contains(t, out, "profile: headless\n")
	assert.Contains(t, out, "features: indirect, timestamp-query\n")
	assert.Contains(t, out, "MaxBindGroups: 8\n")
	assert.Contains(t, out, "MaxBufferSize: 1073741824\n")
}

func TestLimitsConfig(t *testing.T) {
	for _, x := range [...]struct {
		name string
		data string
	}{
		{"hal.toml", "driver = \"soft\"\nplatform = \"mobile\"\nfeatures = [\"indirect\"]\n[limits]\nmax_bind_groups = 2\n"},
		{"hal.yaml", "driver: soft\nplatform: mobile\nfeatures: [indirect]\nlimits:\n  max_bind_groups: 2\n"},
	} {
		t.Run(x.name, func(t *testing.T) {
			out, err := run(t, "--config", writeConfig(t, x.name, x.data), "limits")
			require.NoError(t, err)
			assert.Contains(t, out, "profile: mobile\n")
			assert.Contains(t, out, "features: indirect\n")
			assert.Contains(t, out, "MaxBindGroups: 2\n")
		})
	}
}

func TestOpenErrors(t *testing.T) {
	_, err := run(t, "--driver", "nope", "limits")
	assert.ErrorIs(t, err, gpu.ErrNoDriver)

	_, err = run(t, "--config", writeConfig(t, "hal.json", "{}"), "limits")
	assert.ErrorIs(t, err, gpu.ErrUnsupported)
	assert.ErrorIs(t, err, gpu.ErrConfig)

	_, err = run(t, "--config", writeConfig(t, "hal.toml", "[limits]\nmax_bind_groups = 100\n"), "smoke")
	assert.ErrorIs(t, err, gpu.ErrLimit)

	_, err = run(t, "--config", filepath.Join(t.TempDir(), "missing.toml"), "limits")
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = run(t, "limits", "extra")
	assert.Error(t, err)
}

func TestFormats(t *testing.T) {
	out, err := run(t, "formats")
	require.NoError(t, err)
	for _, f := range gpu.Formats() {
		assert.Contains(t, out, gpu.FormatName(f))
	}
	assert.Regexp(t, `(?m)^rgba8unorm +4 +float +yes +yes +yes +yes$`, out)
	assert.Regexp(t, `(?m)^depth24plus-stencil8 +0 +depth-stencil +yes +- +- +yes$`, out)
	assert.Regexp(t, `(?m)^r32float +4 +unfilterable-float +yes +- +yes +-$`, out)
}

func TestSmoke(t *testing.T) {
	out, err := run(t, "smoke")
	require.NoError(t, err)
	assert.Contains(t, out, "format: rgba8unorm\n")
	assert.Contains(t, out, "size: 8x8\n")
	assert.Contains(t, out, "frames: 1\n")
	assert.Contains(t, out, "pixel: 51 102 153 255\n")
	assert.Contains(t, out, "occlusion: 36\n")
}

func TestSmokeDesktop(t *testing.T) {
	path := writeConfig(t, "hal.yaml", "platform: desktop\n")
	out, err := run(t, "--config", path, "smoke", "--width", "16", "--height", "16")
	require.NoError(t, err)
	assert.Contains(t, out, "format: bgra8unorm\n")
	assert.Contains(t, out, "size: 16x16\n")
	assert.Contains(t, out, "pixel: 51 102 153 255\n")
	assert.Contains(t, out, "occlusion: 136\n")
}

func TestSmokeSinglePixel(t *testing.T) {
	out, err := run(t, "smoke", "--width", "1", "--height", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "size: 1x1\n")
	// The pixel center lies on the hypotenuse.
	assert.Contains(t, out, "occlusion: 1\n")
}
