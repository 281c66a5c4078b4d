package server

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chaos-io/rmbg/matte"
	"github.com/chaos-io/rmbg/storage"
	"github.com/chaos-io/rmbg/util"
)

type cropForm struct {
	CropX      int  `form:"crop_x"`
	CropY      int  `form:"crop_y"`
	CropWidth  int  `form:"crop_width"`
	CropHeight int  `form:"crop_height"`
	AutoCrop   bool `form:"auto_crop"`
}

func (f cropForm) rect() matte.Rect {
	return matte.Rect{X: f.CropX, Y: f.CropY, Width: f.CropWidth, Height: f.CropHeight}
}

type removeForm struct {
	cropForm
	Format     string `form:"format" binding:"omitempty,oneof=png webp"`
	Background string `form:"background"`
}

type smartCropForm struct {
	Threshold   *float64 `form:"threshold" binding:"omitempty,min=0,max=1"`
	Premultiply bool     `form:"premultiply"`
	Format      string   `form:"format" binding:"omitempty,oneof=png webp"`
}

type backgroundForm struct {
	Color  string `form:"color"`
	Format string `form:"format" binding:"omitempty,oneof=png webp"`
}

type historyQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// removeBackground 上传图片 -> 去背景 -> 可选换底色 -> 返回编码后的图片
func (s *Server) removeBackground(c *gin.Context) {
	var form removeForm
	if err := c.ShouldBind(&form); err != nil {
		s.fail(c, statusOf(badRequest(err)), err)
		return
	}
	img, name, err := s.formRaster(c, "file")
	if err != nil {
		s.fail(c, statusOf(err), err)
		return
	}

	res, err := s.remover.Process(c.Request.Context(), img, matte.RunOptions{Crop: form.rect(), AutoCrop: form.AutoCrop})
	if err != nil {
		s.fail(c, statusOf(err), err)
		return
	}

	out := res.Image
	if form.Background != "" {
		bg, err := matte.ParseHexColor(form.Background)
		if err != nil {
			s.fail(c, statusOf(badRequest(err)), err)
			return
		}
		if out, err = matte.ReplaceBackground(out, bg); err != nil {
			s.fail(c, statusOf(err), err)
			return
		}
	}
	if res.Cropped {
		c.Header("X-Crop-Box", res.Crop.String())
	}
	s.respondImage(c, name, out, form.Format)
}

// crop 只做裁剪，不推理
func (s *Server) crop(c *gin.Context) {
	var form cropForm
	if err := c.ShouldBind(&form); err != nil {
		s.fail(c, statusOf(badRequest(err)), err)
		return
	}
	img, name, err := s.formRaster(c, "file")
	if err != nil {
		s.fail(c, statusOf(err), err)
		return
	}

	out, err := matte.ManualCrop(img, form.rect())
	if err != nil {
		s.fail(c, statusOf(err), err)
		return
	}
	if form.AutoCrop {
		if out, err = matte.AutoCrop(out); err != nil {
			s.fail(c, statusOf(err), err)
			return
		}
	}
	s.respondImage(c, name, out, "")
}

// smartCrop 以主体为中心裁成正方形
func (s *Server) smartCrop(c *gin.Context) {
	var form smartCropForm
	if err := c.ShouldBind(&form); err != nil {
		s.fail(c, statusOf(badRequest(err)), err)
		return
	}
	img, name, err := s.formRaster(c, "file")
	if err != nil {
		s.fail(c, statusOf(err), err)
		return
	}

	threshold := 0.8
	if form.Threshold != nil {
		threshold = *form.Threshold
	}
	out, err := matte.SquareCrop(img, threshold)
	if err != nil {
		s.fail(c, statusOf(err), err)
		return
	}
	if form.Premultiply {
		if out, err = matte.Premultiply(out); err != nil {
			s.fail(c, statusOf(err), err)
			return
		}
	}
	s.respondImage(c, name, out, form.Format)
}

// changeBackground 抠图（带 alpha）换成纯色或图片背景
func (s *Server) changeBackground(c *gin.Context) {
	var form backgroundForm
	if err := c.ShouldBind(&form); err != nil {
		s.fail(c, statusOf(badRequest(err)), err)
		return
	}
	fg, name, err := s.formRaster(c, "file")
	if err != nil {
		s.fail(c, statusOf(err), err)
		return
	}

	var out *matte.Raster
	switch {
	case form.Color != "":
		bg, perr := matte.ParseHexColor(form.Color)
		if perr != nil {
			s.fail(c, http.StatusBadRequest, perr)
			return
		}
		out, err = matte.ReplaceBackground(fg, bg)
	default:
		bg, _, ferr := s.formImage(c, "background")
		if ferr != nil {
			s.fail(c, http.StatusBadRequest, fmt.Errorf("color or background image is required: %w", ferr))
			return
		}
		out, err = matte.ReplaceBackgroundImage(fg, bg)
	}
	if err != nil {
		s.fail(c, statusOf(err), err)
		return
	}
	s.respondImage(c, name, out, form.Format)
}

func (s *Server) history(c *gin.Context) {
	if s.store == nil {
		s.fail(c, http.StatusNotFound, errors.New("history is disabled"))
		return
	}
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.fail(c, statusOf(badRequest(err)), err)
		return
	}
	records, err := s.store.List(c.Request.Context(), q.Limit)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"images": records})
}

func (s *Server) image(c *gin.Context) {
	if s.store == nil {
		s.fail(c, http.StatusNotFound, errors.New("history is disabled"))
		return
	}
	rec, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, statusOf(err), err)
		return
	}
	c.Header("Content-Type", util.Format(rec.Format).ContentType())
	c.File(s.store.Path(rec))
}

func (s *Server) formImage(c *gin.Context, field string) (image.Image, string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, "", badRequest(fmt.Errorf("read form file %q: %w", field, err))
	}
	img, err := decodeUpload(fh)
	if err != nil {
		return nil, "", badRequest(err)
	}
	return img, fh.Filename, nil
}

func (s *Server) formRaster(c *gin.Context, field string) (*matte.Raster, string, error) {
	img, name, err := s.formImage(c, field)
	if err != nil {
		return nil, "", err
	}
	r, err := matte.FromImage(img)
	if err != nil {
		return nil, "", badRequest(err)
	}
	return r, name, nil
}

func decodeUpload(fh *multipart.FileHeader) (image.Image, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return util.DecodeImage(f)
}

// respondImage 编码并返回图片，有 store 时先落盘并带上 X-Image-Id
func (s *Server) respondImage(c *gin.Context, name string, r *matte.Raster, format string) {
	if format == "" {
		format = s.out.Format
	}
	f, err := util.ParseFormat(format)
	if err != nil {
		s.fail(c, statusOf(badRequest(err)), err)
		return
	}
	img := util.ResizeWithinMax(r.Image(), s.out.MaxSize)

	if s.store != nil {
		rec, err := s.store.Save(c.Request.Context(), resultName(name, f), f, img)
		if err != nil {
			s.fail(c, http.StatusInternalServerError, err)
			return
		}
		c.Header("X-Image-Id", rec.ID)
		c.Header("Content-Type", f.ContentType())
		c.File(s.store.Path(rec))
		return
	}

	var buf bytes.Buffer
	if err := util.EncodeImage(&buf, img, f); err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, f.ContentType(), buf.Bytes())
}

func (s *Server) fail(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func resultName(upload string, f util.Format) string {
	base := strings.TrimSuffix(filepath.Base(upload), filepath.Ext(upload))
	if base == "" || base == "." {
		base = "image"
	}
	return base + "_nobg." + string(f)
}

type requestError struct{ err error }

func (e requestError) Error() string { return e.err.Error() }
func (e requestError) Unwrap() error { return e.err }

func badRequest(err error) error { return requestError{err: err} }

// statusOf 把流水线错误映射为 HTTP 状态码
func statusOf(err error) int {
	var maxErr *http.MaxBytesError
	var reqErr requestError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &reqErr):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, matte.ErrDegenerateMask):
		return http.StatusUnprocessableEntity
	case errors.Is(err, matte.ErrInferenceFailure):
		return http.StatusBadGateway
	case errors.Is(err, matte.ErrInvalidChannelCount),
		errors.Is(err, matte.ErrDimensionMismatch),
		errors.Is(err, matte.ErrCropOutOfBounds):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
