package matte

import (
	"context"
	"image"
	"log/slog"
	"time"
)

// Segmenter 推理能力：输入 [1,3,H,W] 归一化张量，输出单通道置信度张量
type Segmenter interface {
	Segment(ctx context.Context, input *Tensor) (*Tensor, error)
}

// SegmenterFunc 函数适配器
type SegmenterFunc func(ctx context.Context, input *Tensor) (*Tensor, error)

func (f SegmenterFunc) Segment(ctx context.Context, input *Tensor) (*Tensor, error) {
	return f(ctx, input)
}

// Remover 背景移除流水线，本身无可变状态，可并发使用
type Remover struct {
	seg       Segmenter
	inputSize image.Point
	policy    DegeneratePolicy
	logger    *slog.Logger
}

type Option func(*Remover)

func WithInputSize(size image.Point) Option {
	return func(r *Remover) {
		if size.X > 0 && size.Y > 0 {
			r.inputSize = size
		}
	}
}

func WithDegeneratePolicy(p DegeneratePolicy) Option {
	return func(r *Remover) { r.policy = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Remover) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRemover(seg Segmenter, opts ...Option) *Remover {
	r := &Remover{
		seg:       seg,
		inputSize: DefaultInputSize,
		policy:    DegenerateOpaque,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Remover) InputSize() image.Point { return r.inputSize }

// RunOptions 手动裁剪区域和是否自动裁剪透明边
type RunOptions struct {
	Crop     Rect
	AutoCrop bool
}

// Result 流水线的完整产出
type Result struct {
	Image *Raster
	// Mask 分割阶段得到的 0-255 遮罩，尺寸与手动裁剪后的输入一致
	Mask *Mask
	// Source 实际送入分割的区域（原图坐标）
	Source image.Rectangle
	// Crop 自动裁剪的包围盒，Cropped=false 时无意义
	Crop    Box
	Cropped bool
}

// Run 返回最终的 4 通道图
func (r *Remover) Run(ctx context.Context, img *Raster, opts RunOptions) (*Raster, error) {
	res, err := r.Process(ctx, img, opts)
	if err != nil {
		return nil, err
	}
	return res.Image, nil
}

// Process 依次执行 手动裁剪 -> 分割 -> 合成 -> 自动裁剪，任一步出错立即返回
func (r *Remover) Process(ctx context.Context, img *Raster, opts RunOptions) (*Result, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}

	src, err := ManualCrop(img, opts.Crop)
	if err != nil {
		return nil, err
	}
	source := image.Rect(0, 0, img.Width, img.Height)
	if !opts.Crop.Empty() {
		source = opts.Crop.Rectangle()
		r.logger.Debug("manual crop", "rect", source, "size", src.Size())
	}

	mask, err := r.Mask(ctx, src)
	if err != nil {
		return nil, err
	}

	out, err := Composite(src, mask)
	if err != nil {
		return nil, err
	}

	res := &Result{Image: out, Mask: mask, Source: source}
	if opts.AutoCrop {
		box, ok, err := BoundingBox(out)
		if err != nil {
			return nil, err
		}
		if ok {
			res.Crop, res.Cropped = box, true
			res.Image, err = AutoCrop(out)
			if err != nil {
				return nil, err
			}
		}
		r.logger.Debug("auto crop", "found", ok, "box", box, "size", res.Image.Size())
	}
	return res, nil
}

// Mask 只做分割：预处理 -> 推理 -> 后处理
func (r *Remover) Mask(ctx context.Context, img *Raster) (*Mask, error) {
	start := time.Now()
	input, err := Preprocess(img, r.inputSize)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("preprocess", "size", img.Size(), "tensor", input.Shape, "elapsed", time.Since(start))

	if r.seg == nil {
		return nil, newError(StageInference, ErrInferenceFailure, "no segmenter configured")
	}
	start = time.Now()
	raw, err := r.seg.Segment(ctx, input)
	if err != nil {
		return nil, wrapError(StageInference, ErrInferenceFailure, err, "input %v", input.Shape)
	}
	if raw == nil {
		return nil, newError(StageInference, ErrInferenceFailure, "segmenter returned no output for input %v", input.Shape)
	}
	r.logger.Debug("inference", "output", raw.Shape, "elapsed", time.Since(start))

	mask, err := Postprocess(raw, img.Width, img.Height, r.policy)
	if err != nil {
		return nil, err
	}
	return mask, nil
}
