package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/dreamsurf/internal/engine/texture"
	"github.com/Faultbox/dreamsurf/internal/persist"
)

func TestGenerateNeedsDescription(t *testing.T) {
	err := cmdGenerate("ground", []string{"   "}, &bytes.Buffer{})
	assert.ErrorIs(t, err, errUsage)
}

func TestTerrainCommand(t *testing.T) {
	out := filepath.Join(t.TempDir(), "height.png")
	var buf bytes.Buffer
	require.NoError(t, cmdTerrain([]string{"-size", "16", "-spacing", "2", "-png", out}, &buf))

	assert.Contains(t, buf.String(), "Vertices:  256")
	assert.Contains(t, buf.String(), "Triangles: 450")

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
}

func TestTerrainCommandRejectsTinySize(t *testing.T) {
	err := cmdTerrain([]string{"-size", "1"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, errUsage)
}

func TestCubemapCommand(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "pano.png")
	dst := filepath.Join(dir, "sky.ktx2")

	img := image.NewNRGBA(image.Rect(0, 0, 32, 16))
	for y := range 16 {
		for x := range 32 {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 8), G: uint8(y * 16), B: 200, A: 255})
		}
	}
	var enc bytes.Buffer
	require.NoError(t, png.Encode(&enc, img))
	require.NoError(t, os.WriteFile(src, enc.Bytes(), 0o644))

	var buf bytes.Buffer
	require.NoError(t, cmdCubemap([]string{src, dst}, &buf))
	assert.Contains(t, buf.String(), "png 32x16")

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	cube, err := texture.DecodeKTX2(data)
	require.NoError(t, err)
	for _, face := range cube.Faces {
		require.NotNil(t, face)
		assert.Equal(t, cube.Size, face.Bounds().Dx())
	}
}

func TestCubemapCommandUsage(t *testing.T) {
	err := cmdCubemap([]string{"only-one.png"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, errUsage)
}

func TestHistoryCommand(t *testing.T) {
	db := filepath.Join(t.TempDir(), "library.db")
	lib, err := persist.Open(db)
	require.NoError(t, err)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, lib.Record(ctx, &persist.Generation{
		JobID: "job-1", Kind: "ground", Prompt: "red desert", Succeeded: true,
		Path: "textures/generated/a/ground.png", CreatedAt: base,
	}))
	require.NoError(t, lib.Record(ctx, &persist.Generation{
		JobID: "job-2", Kind: "ground", Prompt: "frozen lake", Error: "upstream: rate limited",
		CreatedAt: base.Add(time.Minute),
	}))
	require.NoError(t, lib.Close())

	var buf bytes.Buffer
	require.NoError(t, cmdHistory([]string{"-db", db, "-kind", "ground"}, &buf))
	out := buf.String()
	assert.Contains(t, out, "red desert")
	assert.Contains(t, out, "frozen lake")
	assert.Contains(t, out, "rate limited")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("frozen lake")), bytes.Index(buf.Bytes(), []byte("red desert")),
		"newest first")

	buf.Reset()
	require.NoError(t, cmdHistory([]string{"-db", db, "-kind", "ground", "-last"}, &buf))
	assert.Contains(t, buf.String(), "red desert")
	assert.NotContains(t, buf.String(), "frozen lake")
}

func TestHistoryCommandFlags(t *testing.T) {
	db := filepath.Join(t.TempDir(), "library.db")
	assert.ErrorIs(t, cmdHistory([]string{"-db", db, "-kind", "castle"}, &bytes.Buffer{}), errUsage)
	assert.ErrorIs(t, cmdHistory([]string{"-db", db, "-last"}, &bytes.Buffer{}), errUsage)

	var buf bytes.Buffer
	require.NoError(t, cmdHistory([]string{"-db", db}, &buf))
	assert.Equal(t, "No generations recorded.\n", buf.String())
}
