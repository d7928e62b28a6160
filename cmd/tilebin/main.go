// Command tilebin bins and composes a scene on the CPU and writes the frame
// as PNG, WebP or TGA.
//
// Usage:
//
//	tilebin -scene ui.yaml -out frame.png
//	tilebin -scene ui.toml -watch -out frame.tga
//	tilebin -random 5000 -seed 42 -strategy bitmap -out frame.webp
//	tilebin -validate-shaders
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"github.com/fsnotify/fsnotify"
	"github.com/ftrvxmtrx/tga"
	"github.com/gogpu/tilebin"
	"github.com/gogpu/tilebin/internal/atlas"
	"github.com/gogpu/tilebin/internal/clilog"
	"github.com/gogpu/tilebin/internal/scenefile"
)

type options struct {
	scene     string
	random    int
	seed      uint64
	width     int
	height    int
	strategy  tilebin.Strategy
	workers   int
	out       string
	watch     bool
	commands  bool
	validate  bool
	logLevel  string
	logFile   string
	atlasSize int
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{}
	var strategy string
	fs := flag.NewFlagSet("tilebin", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.scene, "scene", "", "scene file (.yaml, .yml or .toml)")
	fs.IntVar(&o.random, "random", 0, "generate a random scene of N primitives")
	fs.Uint64Var(&o.seed, "seed", 1, "random scene seed")
	fs.IntVar(&o.width, "width", 0, "screen width (overrides the scene)")
	fs.IntVar(&o.height, "height", 0, "screen height (overrides the scene)")
	fs.StringVar(&strategy, "strategy", "compact", "fine binning strategy: compact or bitmap")
	fs.IntVar(&o.workers, "workers", 0, "worker count (0 = GOMAXPROCS)")
	fs.StringVar(&o.out, "out", "frame.png", "output image (.png, .webp or .tga)")
	fs.BoolVar(&o.watch, "watch", false, "re-render whenever the scene file changes")
	fs.BoolVar(&o.commands, "commands", false, "bin from the command encoding instead of the store")
	fs.BoolVar(&o.validate, "validate-shaders", false, "compile the GPU shaders and exit")
	fs.StringVar(&o.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	fs.StringVar(&o.logFile, "log-file", "", "also log to this rotated file")
	fs.IntVar(&o.atlasSize, "atlas", 512, "glyph atlas side in pixels")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	var err error
	if o.strategy, err = tilebin.ParseStrategy(strategy); err != nil {
		return nil, err
	}
	if !o.validate && (o.scene == "") == (o.random <= 0) {
		return nil, errors.New("exactly one of -scene and -random is required")
	}
	if o.watch && o.scene == "" {
		return nil, errors.New("-watch requires -scene")
	}
	return o, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "tilebin: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	logCfg := clilog.Config{Level: o.logLevel, Console: stderr}
	if o.logFile != "" {
		logCfg.File = clilog.DefaultFileConfig(o.logFile)
	}
	logger, err := clilog.New(logCfg)
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.Slog()
	tilebin.SetLogger(log)
	defer tilebin.SetLogger(nil)

	if o.validate {
		if err := tilebin.ValidateShaders(); err != nil {
			return fmt.Errorf("shader validation: %w", err)
		}
		log.Info("shaders valid")
		return nil
	}

	if o.watch {
		return watch(ctx, o, log)
	}
	return render(o, log)
}

// render bins and composes one frame and writes it to o.out.
func render(o *options, log *slog.Logger) error {
	scene, err := loadScene(o)
	if err != nil {
		return err
	}
	w, h := scene.Size()

	fontSize := scene.FontSize
	if fontSize <= 0 {
		fontSize = 16
	}
	glyphs, err := atlas.NewBuilder(image.Pt(o.atlasSize, o.atlasSize), fontSize)
	if err != nil {
		return err
	}
	defer glyphs.Close()

	store, err := scene.Store(glyphs)
	if err != nil {
		return err
	}
	var src tilebin.Source = store
	if o.commands {
		src = store.Commands()
	}

	n := src.Len()
	capacity := max((n+1023)/1024*1024, 1024)
	cfg := tilebin.NewFrameConfig(image.Pt(w, h), glyphs.Size(), n, tilebin.WithPrimitiveCapacity(capacity))

	binner := tilebin.NewBinner(tilebin.WithStrategy(o.strategy), tilebin.WithWorkers(o.workers))
	defer binner.Close()

	res, err := binner.Bin(cfg, src, glyphs.Metrics())
	if err != nil {
		return err
	}
	st := res.Stats
	log.Info("frame binned",
		slog.Int("primitives", n),
		slog.String("strategy", res.Strategy.String()),
		slog.Int("tiles", cfg.Tiles()),
		slog.Int("entries", res.Entries),
		slog.Int("dropped", st.Dropped),
		slog.Duration("bin", st.Prepare+st.Coarse+st.Fine+st.Sort+st.Resolve),
	)

	bg, err := scene.BackgroundColor()
	if err != nil {
		return err
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if err := binner.Compose(dst, res, src, glyphs.Metrics(), glyphs.Image(), image.NewUniform(bg)); err != nil {
		return err
	}

	if err := writeImage(o.out, dst); err != nil {
		return err
	}
	log.Info("frame written", slog.String("path", o.out))
	return nil
}

// watch renders once, then again after every change to the scene file,
// until ctx is done. Render failures are logged and do not stop the loop.
func watch(ctx context.Context, o *options, log *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Editors often replace the file, so watch its directory.
	target := filepath.Clean(o.scene)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return err
	}

	if err := render(o, log); err != nil {
		log.Error("render failed", slog.Any("error", err))
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			log.Debug("scene changed", slog.String("op", event.Op.String()))
			if err := render(o, log); err != nil {
				log.Error("render failed", slog.Any("error", err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", slog.Any("error", err))
		}
	}
}

func loadScene(o *options) (*scenefile.Scene, error) {
	var scene *scenefile.Scene
	if o.scene != "" {
		s, err := scenefile.Load(o.scene)
		if err != nil {
			return nil, err
		}
		scene = s
	} else {
		w, h := o.width, o.height
		if w <= 0 {
			w = scenefile.DefaultWidth
		}
		if h <= 0 {
			h = scenefile.DefaultHeight
		}
		scene = scenefile.Random(o.random, w, h, o.seed)
	}
	if o.width > 0 {
		scene.Width = o.width
	}
	if o.height > 0 {
		scene.Height = o.height
	}
	return scene, nil
}

func writeImage(path string, img image.Image) (err error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".png" && ext != ".webp" && ext != ".tga" {
		return fmt.Errorf("unsupported output format %q", ext)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	switch ext {
	case ".webp":
		return nativewebp.Encode(f, img, nil)
	case ".tga":
		return tga.Encode(f, img)
	default:
		return png.Encode(f, img)
	}
}
