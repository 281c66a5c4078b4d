package segment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/chaos-io/rmbg/matte"
)

type ONNXConfig struct {
	ModelPath string
	// LibraryPath onnxruntime 动态库路径，为空时用系统默认
	LibraryPath string
	InputName   string
	OutputName  string
	InputSize   int
	OutputSize  int
	UseCUDA     bool
	NumThreads  int
}

// ONNX 本地 ONNX Runtime 会话，输入输出张量预先分配，Segment 串行执行
type ONNX struct {
	cfg     ONNXConfig
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	mu      sync.Mutex
}

var envMu sync.Mutex

func initEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime: %w", err)
	}
	return nil
}

func NewONNX(cfg ONNXConfig) (*ONNX, error) {
	if cfg.InputSize <= 0 {
		cfg.InputSize = matte.DefaultInputSize.X
	}
	if cfg.OutputSize <= 0 {
		cfg.OutputSize = cfg.InputSize
	}
	if cfg.InputName == "" {
		cfg.InputName = "input"
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "output"
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}

	if err := initEnvironment(cfg.LibraryPath); err != nil {
		return nil, err
	}

	m := &ONNX{cfg: cfg}
	if err := m.open(); err != nil {
		_ = m.Close()
		return nil, err
	}
	slog.Info("onnx model loaded", "path", cfg.ModelPath, "input", cfg.InputSize, "output", cfg.OutputSize, "cuda", cfg.UseCUDA)
	return m, nil
}

func (m *ONNX) open() error {
	var err error
	s, o := int64(m.cfg.InputSize), int64(m.cfg.OutputSize)
	m.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, s, s))
	if err != nil {
		return fmt.Errorf("create input tensor: %w", err)
	}
	m.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1, o, o))
	if err != nil {
		return fmt.Errorf("create output tensor: %w", err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("create session options: %w", err)
	}
	defer func() {
		_ = opts.Destroy()
	}()
	if m.cfg.NumThreads > 0 {
		if err := opts.SetIntraOpNumThreads(m.cfg.NumThreads); err != nil {
			return fmt.Errorf("set threads: %w", err)
		}
	}
	if m.cfg.UseCUDA {
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return fmt.Errorf("create cuda options: %w", err)
		}
		defer func() {
			_ = cuda.Destroy()
		}()
		if err := opts.AppendExecutionProviderCUDA(cuda); err != nil {
			return fmt.Errorf("enable cuda: %w", err)
		}
	}

	m.session, err = ort.NewAdvancedSession(m.cfg.ModelPath,
		[]string{m.cfg.InputName}, []string{m.cfg.OutputName},
		[]ort.Value{m.input}, []ort.Value{m.output}, opts)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (m *ONNX) Segment(ctx context.Context, input *matte.Tensor) (*matte.Tensor, error) {
	if err := checkInput(input, m.cfg.InputSize); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil, errors.New("onnx session closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	copy(m.input.GetData(), input.Data)
	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("run session: %w", err)
	}
	out := append([]float32(nil), m.output.GetData()...)
	slog.Debug("onnx inference", "elapsed", time.Since(start))

	return matte.NewTensor([]int{1, 1, m.cfg.OutputSize, m.cfg.OutputSize}, out)
}

// Close 释放会话和张量，运行时环境保留给其他会话
func (m *ONNX) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if m.session != nil {
		errs = append(errs, m.session.Destroy())
		m.session = nil
	}
	if m.input != nil {
		errs = append(errs, m.input.Destroy())
		m.input = nil
	}
	if m.output != nil {
		errs = append(errs, m.output.Destroy())
		m.output = nil
	}
	return errors.Join(errs...)
}
