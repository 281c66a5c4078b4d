package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/chaos-io/rmbg/config"
	"github.com/chaos-io/rmbg/matte"
	"github.com/chaos-io/rmbg/matte/segment"
	"github.com/chaos-io/rmbg/server"
	"github.com/chaos-io/rmbg/storage"
	"github.com/chaos-io/rmbg/util"
)

const usage = `usage: rmbg <command> [flags]

commands:
  remove       remove the background of one image
  serve        run the HTTP API
  init-config  write the default config file
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			slog.Error("rmbg failed", "err", err)
		}
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return flag.ErrHelp
	}
	switch args[0] {
	case "remove":
		return runRemove(ctx, args[1:], stderr)
	case "serve":
		return runServe(ctx, args[1:], stderr)
	case "init-config":
		return runInitConfig(args[1:], stderr)
	case "-h", "--help", "help":
		_, _ = fmt.Fprint(stderr, usage)
		return nil
	default:
		_, _ = fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

type removeFlags struct {
	in, out, configPath string
	crop                matte.Rect
	autoCrop            bool
	background          string
	maskOut             string
	format              string
	maxSize             int
	debug               bool
}

func runRemove(ctx context.Context, args []string, stderr io.Writer) error {
	var f removeFlags
	fs := flag.NewFlagSet("remove", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.in, "in", "", "input image path or http(s) url")
	fs.StringVar(&f.out, "out", "", "output path (default <output.dir>/<name>_nobg.<format>)")
	fs.StringVar(&f.configPath, "config", "", "config file")
	fs.IntVar(&f.crop.X, "crop-x", 0, "manual crop left")
	fs.IntVar(&f.crop.Y, "crop-y", 0, "manual crop top")
	fs.IntVar(&f.crop.Width, "crop-width", 0, "manual crop width")
	fs.IntVar(&f.crop.Height, "crop-height", 0, "manual crop height")
	fs.BoolVar(&f.autoCrop, "auto-crop", false, "trim fully transparent borders")
	fs.StringVar(&f.background, "background", "", "fill the background with a hex color, e.g. #ffffff")
	fs.StringVar(&f.maskOut, "mask-out", "", "also write the grayscale mask here")
	fs.StringVar(&f.format, "format", "", "output format: png or webp, must agree with the -out extension")
	fs.IntVar(&f.maxSize, "max-size", -1, "downscale so the longest side is at most N (0 disables)")
	fs.BoolVar(&f.debug, "debug", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if f.in == "" {
		fs.Usage()
		return errors.New("-in is required")
	}

	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return err
	}
	if f.format != "" {
		cfg.Output.Format = f.format
	}
	if f.maxSize >= 0 {
		cfg.Output.MaxSize = f.maxSize
	}
	if f.autoCrop {
		cfg.Pipeline.AutoCrop = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	outPath, format, err := outputTarget(f.out, f.format != "", cfg.Output)
	if err != nil {
		return err
	}
	if outPath == "" {
		outPath = filepath.Join(cfg.Output.Dir, outputName(f.in, format))
	}

	logger := setupLogger(cfg.Log, f.debug, stderr)
	defer util.Trace("remove background")()

	seg, err := segment.New(cfg.Model, cfg.Pipeline.InputSize)
	if err != nil {
		return err
	}
	defer func() {
		_ = seg.Close()
	}()
	remover, err := newRemover(seg, cfg.Pipeline, logger)
	if err != nil {
		return err
	}

	src, err := util.LoadImage(ctx, f.in)
	if err != nil {
		return err
	}
	raster, err := matte.FromImage(src)
	if err != nil {
		return err
	}

	res, err := remover.Process(ctx, raster, matte.RunOptions{Crop: f.crop, AutoCrop: cfg.Pipeline.AutoCrop})
	if err != nil {
		return err
	}
	out := res.Image
	if f.background != "" {
		c, err := matte.ParseHexColor(f.background)
		if err != nil {
			return err
		}
		if out, err = matte.ReplaceBackground(out, c); err != nil {
			return err
		}
	}

	if err := util.SaveImageAs(outPath, util.ResizeWithinMax(out.Image(), cfg.Output.MaxSize), format); err != nil {
		return err
	}
	if f.maskOut != "" {
		if err := util.SaveImage(f.maskOut, res.Mask.Gray()); err != nil {
			return err
		}
	}

	logger.Info("background removed", "in", f.in, "out", outPath, "size", out.Size(), "cropped", res.Cropped, "box", res.Crop)
	return nil
}

func runServe(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "config file")
	addr := fs.String("addr", "", "listen address, overrides server.addr")
	debug := fs.Bool("debug", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := setupLogger(cfg.Log, *debug, stderr)
	if !*debug {
		gin.SetMode(gin.ReleaseMode)
	}

	seg, err := segment.New(cfg.Model, cfg.Pipeline.InputSize)
	if err != nil {
		return err
	}
	defer func() {
		_ = seg.Close()
	}()
	remover, err := newRemover(seg, cfg.Pipeline, logger)
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg.Server.StoreDir, cfg.Server.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()
	if err := store.StartJanitor(cfg.Server.Cleanup, cfg.Server.Retention.Std()); err != nil {
		return err
	}

	return server.New(remover, store, cfg.Server, cfg.Output, logger).Run(ctx)
}

func runInitConfig(args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("init-config", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", config.GetConfigPath(), "where to write the config")
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := os.Stat(*out); err == nil && !*force {
		return fmt.Errorf("%s already exists, use -force to overwrite", *out)
	}
	if err := config.Default().SaveToFile(*out); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stderr, "config written to %s\n", *out)
	return nil
}

// loadConfig 未指定时尝试默认路径，不存在则用默认配置
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	if _, err := os.Stat(config.GetConfigPath()); err == nil {
		return config.LoadFromFile(config.GetConfigPath())
	}
	return config.Default(), nil
}

func setupLogger(cfg config.LogConfig, debug bool, w io.Writer) *slog.Logger {
	level := cfg.Level
	if debug {
		level = "debug"
	}
	logger := util.NewLogger(w, level, cfg.Format)
	slog.SetDefault(logger)
	return logger
}

func newRemover(seg matte.Segmenter, cfg config.PipelineConfig, logger *slog.Logger) (*matte.Remover, error) {
	policy, err := matte.ParseDegeneratePolicy(cfg.DegeneratePolicy)
	if err != nil {
		return nil, err
	}
	return matte.NewRemover(seg,
		matte.WithInputSize(image.Pt(cfg.InputSize, cfg.InputSize)),
		matte.WithDegeneratePolicy(policy),
		matte.WithLogger(logger),
	), nil
}

// outputTarget 确定输出格式：-out 带扩展名时以扩展名为准，与显式 -format 冲突则报错
func outputTarget(out string, explicit bool, cfg config.OutputConfig) (string, util.Format, error) {
	format, err := util.ParseFormat(cfg.Format)
	if err != nil {
		return "", "", err
	}
	ext := filepath.Ext(out)
	if ext == "" {
		return out, format, nil
	}
	byExt, err := util.ParseFormat(ext)
	if err != nil {
		return "", "", fmt.Errorf("output %s: %w", out, err)
	}
	if explicit && byExt != format {
		return "", "", fmt.Errorf("-format %s conflicts with output extension %s", format, ext)
	}
	return out, byExt, nil
}

func outputName(source string, f util.Format) string {
	if strings.Contains(source, "://") {
		if u, err := url.Parse(source); err == nil {
			source = u.Path
		}
	}
	base := filepath.Base(source)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == "/" {
		base = "image"
	}
	return base + "_nobg." + string(f)
}
