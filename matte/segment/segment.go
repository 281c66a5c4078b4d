// Package segment 提供 matte.Segmenter 的具体推理后端：本地 ONNX 模型和远程推理服务
package segment

import (
	"fmt"
	"io"

	"github.com/chaos-io/rmbg/config"
	"github.com/chaos-io/rmbg/matte"
)

// Backend 可关闭的推理后端
type Backend interface {
	matte.Segmenter
	io.Closer
}

// New 按配置创建后端，inputSize 为送入模型的正方形边长
func New(cfg config.ModelConfig, inputSize int) (Backend, error) {
	switch cfg.Backend {
	case config.BackendONNX, "":
		return NewONNX(ONNXConfig{
			ModelPath:   cfg.Path,
			LibraryPath: cfg.LibraryPath,
			InputName:   cfg.InputName,
			OutputName:  cfg.OutputName,
			InputSize:   inputSize,
			OutputSize:  cfg.OutputSize,
			UseCUDA:     cfg.UseCUDA,
			NumThreads:  cfg.NumThreads,
		})
	case config.BackendRemote:
		return NewRemote(RemoteConfig{
			URL:        cfg.RemoteURL,
			Model:      cfg.RemoteModel,
			InputName:  cfg.InputName,
			OutputName: cfg.OutputName,
			Timeout:    cfg.Timeout.Std(),
		})
	default:
		return nil, fmt.Errorf("unknown model backend %q", cfg.Backend)
	}
}

func checkInput(input *matte.Tensor, size int) error {
	if input == nil {
		return fmt.Errorf("nil input tensor")
	}
	want := []int{1, 3, size, size}
	if len(input.Shape) != len(want) {
		return fmt.Errorf("input shape %v, want %v", input.Shape, want)
	}
	for i := range want {
		if input.Shape[i] != want[i] {
			return fmt.Errorf("input shape %v, want %v", input.Shape, want)
		}
	}
	if len(input.Data) != input.Len() {
		return fmt.Errorf("input has %d values, want %d", len(input.Data), input.Len())
	}
	return nil
}
