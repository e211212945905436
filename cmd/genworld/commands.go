package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Faultbox/dreamsurf/internal/config"
	"github.com/Faultbox/dreamsurf/internal/engine/terrain"
	"github.com/Faultbox/dreamsurf/internal/engine/texture"
	"github.com/Faultbox/dreamsurf/internal/game/generation"
	"github.com/Faultbox/dreamsurf/internal/game/splice"
	"github.com/Faultbox/dreamsurf/internal/logger"
	"github.com/Faultbox/dreamsurf/internal/persist"
	"github.com/Faultbox/dreamsurf/internal/storage"
)

var kinds = map[string]generation.Kind{
	"ground": generation.KindGround,
	"sky":    generation.KindSky,
	"prop":   generation.KindProp,
}

// cmdGenerate runs one generation job in the foreground and records it.
func cmdGenerate(name string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	timeout := fs.Duration("timeout", 0, "Give up after this long (0 = use generation.timeout)")
	record := fs.Bool("record", true, "Record the result in the generation library")
	if err := fs.Parse(args); err != nil {
		return err
	}
	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if prompt == "" {
		return fmt.Errorf("%w: genworld %s [-timeout D] <description>", errUsage, name)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := storage.NewFileStore(cfg.Assets.Root)
	if err != nil {
		return err
	}
	pipeline := generation.NewPipelineFromConfig(cfg.Generation, store, logger.Named("pipeline"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if *timeout == 0 {
		*timeout = cfg.Generation.Timeout
	}
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	kind := kinds[name]
	start := time.Now()
	a, genErr := pipeline.Generate(ctx, kind, prompt)
	elapsed := time.Since(start)

	if *record && cfg.Assets.LibraryPath != "" {
		recordGeneration(cfg.Assets.LibraryPath, kind, prompt, a, genErr, start, elapsed)
	}
	if genErr != nil {
		return genErr
	}

	fmt.Fprintf(out, "%s: %s\n", kind, store.Path(a.Path))
	if a.Prop != nil {
		fmt.Fprintf(out, "preview: %s\n", store.Path(a.Prop.PreviewPath))
	}
	fmt.Fprintf(out, "took %s\n", elapsed.Round(time.Second))
	return nil
}

func recordGeneration(path string, kind generation.Kind, prompt string, a generation.Artifact, err error, start time.Time, elapsed time.Duration) {
	lib, openErr := persist.Open(path)
	if openErr != nil {
		logger.Warn("generation library unavailable", zap.Error(openErr))
		return
	}
	defer lib.Close()

	g := &persist.Generation{
		JobID:        uuid.NewString(),
		GenerationID: a.GenerationID,
		Kind:         kind.String(),
		Prompt:       prompt,
		Succeeded:    err == nil,
		Path:         a.Path,
		DurationMs:   elapsed.Milliseconds(),
		CreatedAt:    start,
	}
	if a.Prop != nil {
		g.PreviewPath = a.Prop.PreviewPath
	}
	if err != nil {
		g.Error = err.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lib.Record(ctx, g); err != nil {
		logger.Warn("recording generation failed", zap.Error(err))
	}
}

// cmdTerrain synthesizes the terrain the client would build and reports it.
func cmdTerrain(args []string, out io.Writer) error {
	defaults := config.Default().Terrain
	fs := flag.NewFlagSet("terrain", flag.ContinueOnError)
	size := fs.Int("size", defaults.Size, "Vertices per side")
	spacing := fs.Float64("spacing", float64(defaults.CellSpacing), "World units between vertices")
	pngOut := fs.String("png", "", "Write the heightmap as a grayscale PNG")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *size < 2 || *spacing <= 0 {
		return fmt.Errorf("%w: -size must be at least 2 and -spacing positive", errUsage)
	}

	params := splice.ParamsFromConfig(config.TerrainConfig{
		Size:        *size,
		CellSpacing: float32(*spacing),
		UVTiles:     defaults.UVTiles,
	})
	field := params.Generate()
	mesh := terrain.BuildMesh(field, params.UVTiles)

	fmt.Fprintf(out, "Size:      %d x %d\n", field.Size, field.Size)
	fmt.Fprintf(out, "Extent:    %.1f\n", 2*params.HalfExtent())
	fmt.Fprintf(out, "Vertices:  %d\n", len(mesh.Vertices))
	fmt.Fprintf(out, "Triangles: %d\n", len(mesh.Indices)/3)
	fmt.Fprintf(out, "Height:    %.2f .. %.2f\n", mesh.Bounds.Min[1], mesh.Bounds.Max[1])
	fmt.Fprintf(out, "Spawn:     %.2f\n", params.HeightAt(0, 0))

	if *pngOut == "" {
		return nil
	}
	if err := writeHeightmap(*pngOut, field, mesh.Bounds); err != nil {
		return err
	}
	fmt.Fprintf(out, "Heightmap: %s\n", *pngOut)
	return nil
}

func writeHeightmap(path string, field *terrain.Heightfield, b terrain.Bounds) error {
	img := image.NewGray(image.Rect(0, 0, field.Size, field.Size))
	lo, span := b.Min[1], b.Max[1]-b.Min[1]
	for x := range field.Size {
		for z := range field.Size {
			v := float32(0)
			if span > 0 {
				v = (field.Heights[x][z] - lo) / span
			}
			img.SetGray(x, z, color.Gray{Y: uint8(v * 255)})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encoding heightmap: %w", err)
	}
	return f.Close()
}

// cmdCubemap converts a local equirectangular panorama into a KTX2 cubemap.
func cmdCubemap(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("cubemap", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("%w: genworld cubemap <panorama> <out.ktx2>", errUsage)
	}
	src, dst := fs.Arg(0), fs.Arg(1)

	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	img, format, err := texture.Decode(data)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", src, err)
	}
	cube, err := texture.EquirectToCubemap(context.Background(), texture.CropToEquirect(img))
	if err != nil {
		return err
	}
	enc, err := cube.EncodeKTX2()
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, enc, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s (%s %dx%d) -> %s (6 x %dpx faces)\n",
		src, format, img.Bounds().Dx(), img.Bounds().Dy(), dst, cube.Size)
	return nil
}

// cmdHistory lists the generation library.
func cmdHistory(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	kind := fs.String("kind", "", "Only show this kind (ground, sky, prop)")
	limit := fs.Int("n", 20, "Show at most N entries (0 = all)")
	last := fs.Bool("last", false, "Show only the newest successful generation of -kind")
	db := fs.String("db", "", "Library path (default: assets.library_path)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *kind != "" {
		if _, ok := kinds[*kind]; !ok {
			return fmt.Errorf("%w: unknown kind %q", errUsage, *kind)
		}
	}
	if *last && *kind == "" {
		return fmt.Errorf("%w: -last needs -kind", errUsage)
	}

	path := *db
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		path = cfg.Assets.LibraryPath
	}
	if path == "" {
		return errors.New("no generation library configured")
	}
	lib, err := persist.Open(path)
	if err != nil {
		return err
	}
	defer lib.Close()

	ctx := context.Background()
	var gens []persist.Generation
	if *last {
		g, err := lib.LastSucceeded(ctx, *kind)
		if err != nil {
			return fmt.Errorf("no successful %s generation: %w", *kind, err)
		}
		gens = append(gens, *g)
	} else if gens, err = lib.Recent(ctx, *kind, *limit); err != nil {
		return err
	}
	printHistory(out, gens)
	return nil
}

func printHistory(out io.Writer, gens []persist.Generation) {
	if len(gens) == 0 {
		fmt.Fprintln(out, "No generations recorded.")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tKIND\tSTATUS\tTOOK\tPROMPT\tRESULT")
	for _, g := range gens {
		status, result := "ok", g.Path
		if !g.Succeeded {
			status, result = "failed", g.Error
		}
		took := (time.Duration(g.DurationMs) * time.Millisecond).Round(time.Second)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			g.CreatedAt.Format("2006-01-02 15:04"), g.Kind, status, took, clip(g.Prompt, 40), clip(result, 60))
	}
	tw.Flush()
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
