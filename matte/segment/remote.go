package segment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/chaos-io/rmbg/matte"
	nhttp "github.com/chaos-io/rmbg/util/http"
)

type RemoteConfig struct {
	// URL 推理服务根地址，例如 http://localhost:8000
	URL        string
	Model      string
	InputName  string
	OutputName string
	Timeout    time.Duration
}

// Remote 通过 KServe v2 推理协议调用远程模型
type Remote struct {
	cfg      RemoteConfig
	endpoint string
	cli      nhttp.IClient
}

func NewRemote(cfg RemoteConfig) (*Remote, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse remote url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote url must be http(s), got %q", cfg.URL)
	}
	if cfg.Model == "" {
		return nil, errors.New("remote model name is required")
	}
	if cfg.InputName == "" {
		cfg.InputName = "input"
	}

	return &Remote{
		cfg:      cfg,
		endpoint: strings.TrimRight(cfg.URL, "/") + "/v2/models/" + url.PathEscape(cfg.Model) + "/infer",
		cli:      nhttp.NewHTTPClient(),
	}, nil
}

type inferTensor struct {
	Name     string    `json:"name"`
	Shape    []int     `json:"shape"`
	Datatype string    `json:"datatype"`
	Data     []float32 `json:"data"`
}

type inferRequest struct {
	Inputs []inferTensor `json:"inputs"`
}

type inferResponse struct {
	ModelName string        `json:"model_name"`
	Outputs   []inferTensor `json:"outputs"`
}

/*
	curl -X POST "$BASE_URL/v2/models/rmbg/infer" \
	  -H "Content-Type: application/json" \
	  -d '{"inputs":[{"name":"input","shape":[1,3,1024,1024],"datatype":"FP32","data":[...]}]}'

{"model_name":"rmbg","outputs":[{"name":"output","shape":[1,1,1024,1024],"datatype":"FP32","data":[...]}]}
*/
func (r *Remote) Segment(ctx context.Context, input *matte.Tensor) (*matte.Tensor, error) {
	if input == nil {
		return nil, errors.New("nil input tensor")
	}

	resp := &inferResponse{}
	reqParam := &nhttp.RequestParam{
		RequestURI: r.endpoint,
		Method:     "POST",
		Header:     map[string]string{"Content-Type": "application/json"},
		Body: inferRequest{Inputs: []inferTensor{{
			Name:     r.cfg.InputName,
			Shape:    input.Shape,
			Datatype: "FP32",
			Data:     input.Data,
		}}},
		Response: resp,
		Timeout:  r.cfg.Timeout,
	}

	start := time.Now()
	if err := r.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	slog.Debug("get the response", "model", resp.ModelName, "outputs", len(resp.Outputs), "elapsed", time.Since(start))

	out, err := r.pickOutput(resp.Outputs)
	if err != nil {
		return nil, err
	}
	t, err := matte.NewTensor(out.Shape, out.Data)
	if err != nil {
		return nil, fmt.Errorf("output %q: %w", out.Name, err)
	}
	return t, nil
}

func (r *Remote) pickOutput(outputs []inferTensor) (inferTensor, error) {
	for _, o := range outputs {
		if r.cfg.OutputName != "" && o.Name != r.cfg.OutputName {
			continue
		}
		if o.Datatype != "FP32" {
			return inferTensor{}, fmt.Errorf("output %q has datatype %s, want FP32", o.Name, o.Datatype)
		}
		return o, nil
	}
	if r.cfg.OutputName != "" {
		return inferTensor{}, fmt.Errorf("response has no output named %q", r.cfg.OutputName)
	}
	return inferTensor{}, errors.New("response has no outputs")
}

func (r *Remote) Close() error { return nil }
