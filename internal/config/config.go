package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/vk/wasmchat/internal/fetch"
	"github.com/vk/wasmchat/internal/rpc"
)

// File is the decoded configuration file.
type File struct {
	// WorkerBinary is the path of the worker process executable.
	WorkerBinary string `hcl:"worker_binary,optional"`

	// PreprocessModule is the path of the compiled preprocessing wasm
	// module loaded by the daemon.
	PreprocessModule string `hcl:"preprocess_module,optional"`

	// LanguageModule is the path of the compiled language wasm module
	// loaded by the worker.
	LanguageModule string `hcl:"language_module,optional"`

	Model    *ModelBlock    `hcl:"model,block"`
	Fetch    *FetchBlock    `hcl:"fetch,block"`
	Generate *GenerateBlock `hcl:"generate,block"`
}

// ModelBlock names the remote model resource the worker fetches at load
// time.
type ModelBlock struct {
	URL string `hcl:"url"`
}

// FetchBlock configures the resilient fetch layer.
type FetchBlock struct {
	RestrictedHost string   `hcl:"restricted_host,optional"`
	MirrorHosts    []string `hcl:"mirror_hosts,optional"`
	Proxies        []string `hcl:"proxies,optional"`
	Timeout        string   `hcl:"timeout,optional"`
}

// GenerateBlock configures generation calls.
type GenerateBlock struct {
	MaxNewTokens int     `hcl:"max_new_tokens,optional"`
	Temperature  float64 `hcl:"temperature,optional"`
	DoSample     *bool   `hcl:"do_sample,optional"`
	Timeout      string  `hcl:"timeout,optional"`
	Language     string  `hcl:"language,optional"`
}

// Load reads, decodes, defaults and validates a configuration file.
func Load(path string) (*File, error) {
	var f File
	if err := hclsimple.DecodeFile(path, nil, &f); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return finalize(&f)
}

// Decode is Load over an in-memory buffer. The filename selects the HCL
// syntax and shows up in diagnostics.
func Decode(filename string, src []byte) (*File, error) {
	var f File
	if err := hclsimple.Decode(filename, src, nil, &f); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return finalize(&f)
}

func finalize(f *File) (*File, error) {
	applyDefaults(f)
	if err := validate(f); err != nil {
		return nil, err
	}
	return f, nil
}

func applyDefaults(f *File) {
	if f.Fetch == nil {
		f.Fetch = &FetchBlock{}
	}
	if f.Fetch.RestrictedHost == "" {
		f.Fetch.RestrictedHost = "huggingface.co"
	}
	if len(f.Fetch.Proxies) == 0 {
		f.Fetch.Proxies = []string{
			"https://corsproxy.io/?",
			"https://api.allorigins.win/raw?url=",
			"https://proxy.cors.sh/",
		}
	}
	if f.Fetch.Timeout == "" {
		f.Fetch.Timeout = "30s"
	}

	if f.Generate == nil {
		f.Generate = &GenerateBlock{}
	}
	if f.Generate.MaxNewTokens == 0 {
		f.Generate.MaxNewTokens = 64
	}
	if f.Generate.Temperature == 0 {
		f.Generate.Temperature = 0.7
	}
	if f.Generate.DoSample == nil {
		sample := true
		f.Generate.DoSample = &sample
	}
	if f.Generate.Timeout == "" {
		f.Generate.Timeout = "60s"
	}
	if f.Generate.Language == "" {
		f.Generate.Language = "auto"
	}
}

// validate collects every problem instead of stopping at the first one.
func validate(f *File) error {
	var errs []string

	if f.WorkerBinary != "" && f.Model == nil {
		errs = append(errs, "a worker_binary is configured but no model block names the resource it should load")
	}
	if f.Model != nil && f.Model.URL == "" {
		errs = append(errs, "model block: url must not be empty")
	}
	if _, err := time.ParseDuration(f.Fetch.Timeout); err != nil {
		errs = append(errs, fmt.Sprintf("fetch block: invalid timeout %q", f.Fetch.Timeout))
	}
	if _, err := time.ParseDuration(f.Generate.Timeout); err != nil {
		errs = append(errs, fmt.Sprintf("generate block: invalid timeout %q", f.Generate.Timeout))
	}
	if f.Generate.MaxNewTokens < 0 {
		errs = append(errs, "generate block: max_new_tokens must not be negative")
	}
	if f.Generate.Temperature < 0 {
		errs = append(errs, "generate block: temperature must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// FetchConfig translates the fetch block into the fetch layer's config.
func (f *File) FetchConfig() fetch.Config {
	timeout, _ := time.ParseDuration(f.Fetch.Timeout)
	return fetch.Config{
		RestrictedHost: f.Fetch.RestrictedHost,
		MirrorHosts:    f.Fetch.MirrorHosts,
		Proxies:        f.Fetch.Proxies,
		Timeout:        timeout,
	}
}

// GenerateOptions translates the generate block into wire options.
func (f *File) GenerateOptions() rpc.GenerateOptions {
	return rpc.GenerateOptions{
		MaxNewTokens: f.Generate.MaxNewTokens,
		Temperature:  f.Generate.Temperature,
		DoSample:     *f.Generate.DoSample,
	}
}

// GenerateTimeout is the per-call deadline for generation requests.
func (f *File) GenerateTimeout() time.Duration {
	d, _ := time.ParseDuration(f.Generate.Timeout)
	return d
}
