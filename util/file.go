package util

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	nhttp "github.com/chaos-io/rmbg/util/http"
)

// Format 输出编码格式，只支持无损格式以保留 alpha
type Format string

const (
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(s, "."))); f {
	case "", FormatPNG:
		return FormatPNG, nil
	case FormatWebP:
		return FormatWebP, nil
	default:
		return "", fmt.Errorf("unsupported output format %q", s)
	}
}

// FormatFromPath 按扩展名推断格式，无法识别时用 fallback
func FormatFromPath(path string, fallback Format) Format {
	ext := filepath.Ext(path)
	if ext == "" {
		return fallback
	}
	f, err := ParseFormat(ext)
	if err != nil {
		return fallback
	}
	return f
}

func (f Format) ContentType() string {
	if f == FormatWebP {
		return "image/webp"
	}
	return "image/png"
}

var httpClient = nhttp.NewHTTPClient()

// DownloadImage 下载图片
func DownloadImage(ctx context.Context, url string) (image.Image, error) {
	var data []byte
	err := httpClient.DoHTTPRequest(ctx, &nhttp.RequestParam{
		RequestURI:  url,
		Method:      "GET",
		RawResponse: &data,
	})
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	return DecodeImage(bytes.NewReader(data))
}

// OpenImage 打开本地图片，按 EXIF 方向摆正
func OpenImage(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err == nil {
		return img, nil
	}
	if !strings.EqualFold(filepath.Ext(path), ".webp") {
		return nil, fmt.Errorf("open image: %w", err)
	}

	// 部分 webp 变体 x/image 解不了，交给 libwebp
	data, rerr := os.ReadFile(path)
	if rerr != nil {
		return nil, fmt.Errorf("open image: %w", rerr)
	}
	img, werr := webp.Decode(bytes.NewReader(data))
	if werr != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	return img, nil
}

// LoadImage source 可以是本地路径，也可以是 http(s) 地址
func LoadImage(ctx context.Context, source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return DownloadImage(ctx, source)
	}
	return OpenImage(source)
}

// DecodeImage 从流中解码，失败时再按 webp 试一次
func DecodeImage(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err == nil {
		return img, nil
	}
	if wimg, werr := webp.Decode(bytes.NewReader(data)); werr == nil {
		return wimg, nil
	}
	return nil, fmt.Errorf("decode image: %w", err)
}

// EncodeImage 无损编码
func EncodeImage(w io.Writer, img image.Image, format Format) error {
	switch format {
	case FormatWebP:
		if err := webp.Encode(w, straightRGBA(img), &webp.Options{Lossless: true}); err != nil {
			return fmt.Errorf("encode webp: %w", err)
		}
	default:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(w, img); err != nil {
			return fmt.Errorf("encode png: %w", err)
		}
	}
	return nil
}

// straightRGBA libwebp 按非预乘读取 RGBA 字节，这里把 NRGBA 像素原样包成 *image.RGBA
func straightRGBA(img image.Image) *image.RGBA {
	n, ok := img.(*image.NRGBA)
	if !ok {
		b := img.Bounds()
		n = image.NewNRGBA(b)
		draw.Draw(n, b, img, b.Min, draw.Src)
	}
	return &image.RGBA{Pix: n.Pix, Stride: n.Stride, Rect: n.Rect}
}

// SaveImage 写文件，格式由扩展名决定（默认 png），目录不存在时自动创建
func SaveImage(path string, img image.Image) error {
	return SaveImageAs(path, img, FormatFromPath(path, FormatPNG))
}

// SaveImageAs 按指定格式写文件，不看扩展名
func SaveImageAs(path string, img image.Image, format Format) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := EncodeImage(f, img, format); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ResizeWithinMax 缩放（最长边 <= maxSize），maxSize <= 0 时不处理
func ResizeWithinMax(img image.Image, maxSize int) image.Image {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	longest := max(w, h)

	if maxSize <= 0 || longest <= maxSize {
		return img
	}

	scale := float64(maxSize) / float64(longest)
	newW := max(1, int(float64(w)*scale))
	newH := max(1, int(float64(h)*scale))

	return resize.Resize(uint(newW), uint(newH), img, resize.Lanczos3)
}
