package segment

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaos-io/rmbg/config"
	"github.com/chaos-io/rmbg/matte"
)

// kserve 模拟推理服务：输出 = 第一个通道 + 0.5
func kserve(t *testing.T, outputName string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/models/rmbg/infer", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req inferRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Inputs, 1)
		in := req.Inputs[0]
		assert.Equal(t, "input", in.Name)
		assert.Equal(t, "FP32", in.Datatype)

		h, w2 := in.Shape[2], in.Shape[3]
		out := make([]float32, h*w2)
		for i := range out {
			out[i] = in.Data[i] + 0.5
		}
		_ = json.NewEncoder(w).Encode(inferResponse{
			ModelName: "rmbg",
			Outputs: []inferTensor{
				{Name: "aux", Shape: []int{1}, Datatype: "INT64", Data: []float32{1}},
				{Name: outputName, Shape: []int{1, 1, h, w2}, Datatype: "FP32", Data: out},
			},
		})
	}))
}

func TestRemote_Segment(t *testing.T) {
	server := kserve(t, "output")
	defer server.Close()

	seg, err := NewRemote(RemoteConfig{URL: server.URL + "/", Model: "rmbg", OutputName: "output", Timeout: time.Second})
	require.NoError(t, err)

	input, err := matte.Preprocess(matte.NewRaster(4, 4, 3), image.Pt(4, 4))
	require.NoError(t, err)

	got, err := seg.Segment(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 4, 4}, got.Shape)
	assert.InDelta(t, 0, got.Data[0], 1e-6)
	assert.NoError(t, seg.Close())
}

func TestRemote_WithRemover(t *testing.T) {
	server := kserve(t, "output")
	defer server.Close()

	seg, err := NewRemote(RemoteConfig{URL: server.URL, Model: "rmbg", OutputName: "output"})
	require.NoError(t, err)

	img := matte.NewRaster(8, 8, 3)
	for y := 2; y < 5; y++ {
		for x := 3; x < 6; x++ {
			img.Pix[(y*8+x)*3] = 255
		}
	}
	res, err := matte.NewRemover(seg, matte.WithInputSize(image.Pt(8, 8))).
		Process(context.Background(), img, matte.RunOptions{AutoCrop: true})
	require.NoError(t, err)
	assert.Equal(t, matte.Box{XMin: 3, YMin: 2, XMax: 5, YMax: 4}, res.Crop)
}

func TestRemote_Errors(t *testing.T) {
	input, err := matte.NewTensor([]int{1, 3, 2, 2}, make([]float32, 12))
	require.NoError(t, err)

	t.Run("服务端错误", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not ready", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		seg, err := NewRemote(RemoteConfig{URL: server.URL, Model: "rmbg"})
		require.NoError(t, err)
		_, err = seg.Segment(context.Background(), input)
		assert.ErrorContains(t, err, "status 503")
		assert.ErrorContains(t, err, "model not ready")
	})

	t.Run("缺少指定输出", func(t *testing.T) {
		server := kserve(t, "mask")
		defer server.Close()

		seg, err := NewRemote(RemoteConfig{URL: server.URL, Model: "rmbg", OutputName: "output"})
		require.NoError(t, err)
		_, err = seg.Segment(context.Background(), input)
		assert.ErrorContains(t, err, `no output named "output"`)
	})

	t.Run("数据类型不对", func(t *testing.T) {
		server := kserve(t, "output")
		defer server.Close()

		// 不指定名字时取第一个输出，这里是 INT64
		seg, err := NewRemote(RemoteConfig{URL: server.URL, Model: "rmbg"})
		require.NoError(t, err)
		_, err = seg.Segment(context.Background(), input)
		assert.ErrorContains(t, err, "want FP32")
	})

	t.Run("推理失败会被流水线包装", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		seg, err := NewRemote(RemoteConfig{URL: server.URL, Model: "rmbg"})
		require.NoError(t, err)
		_, err = matte.NewRemover(seg, matte.WithInputSize(image.Pt(2, 2))).
			Run(context.Background(), matte.NewRaster(2, 2, 3), matte.RunOptions{})
		assert.True(t, errors.Is(err, matte.ErrInferenceFailure))
	})
}

func TestNewRemote_Validation(t *testing.T) {
	_, err := NewRemote(RemoteConfig{URL: "localhost:8000", Model: "rmbg"})
	assert.Error(t, err)

	_, err = NewRemote(RemoteConfig{URL: "http://localhost:8000"})
	assert.ErrorContains(t, err, "model name")

	seg, err := NewRemote(RemoteConfig{URL: "http://localhost:8000/", Model: "rmbg 1.4"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/v2/models/rmbg%201.4/infer", seg.endpoint)
}

func TestNew(t *testing.T) {
	cfg := config.Default().Model
	cfg.Backend = config.BackendRemote
	b, err := New(cfg, 1024)
	require.NoError(t, err)
	assert.IsType(t, &Remote{}, b)

	cfg.Backend = "tflite"
	_, err = New(cfg, 1024)
	assert.ErrorContains(t, err, "unknown model backend")

	// 模型文件不存在时不会去加载 onnxruntime
	cfg.Backend = config.BackendONNX
	cfg.Path = filepath.Join(t.TempDir(), "missing.onnx")
	_, err = New(cfg, 1024)
	assert.ErrorContains(t, err, "model file")
}

func TestCheckInput(t *testing.T) {
	ok, err := matte.NewTensor([]int{1, 3, 2, 2}, make([]float32, 12))
	require.NoError(t, err)
	assert.NoError(t, checkInput(ok, 2))
	assert.ErrorContains(t, checkInput(ok, 4), "want [1 3 4 4]")
	assert.Error(t, checkInput(nil, 2))

	short := &matte.Tensor{Shape: []int{1, 3, 2, 2}, Data: make([]float32, 11)}
	assert.ErrorContains(t, checkInput(short, 2), "input has 11 values, want 12")
}
