package xconf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Format 配置文件格式。
type Format string

const (
	// FormatYAML YAML 格式。
	FormatYAML Format = "yaml"
	// FormatJSON JSON 格式。
	FormatJSON Format = "json"
)

// Option 加载选项。
type Option func(*options)

type options struct {
	delim     string
	tag       string
	envPrefix string
}

func defaultOptions() *options {
	return &options{
		delim: ".",
		tag:   "koanf",
	}
}

// WithDelim 设置键分隔符。默认 "."。
func WithDelim(delim string) Option {
	return func(o *options) {
		if delim != "" {
			o.delim = delim
		}
	}
}

// WithTag 设置 Unmarshal 使用的结构体标签。默认 "koanf"。
func WithTag(tag string) Option {
	return func(o *options) {
		if tag != "" {
			o.tag = tag
		}
	}
}

// WithEnvPrefix 启用环境变量覆盖。
// 带此前缀的环境变量覆盖同名配置键：前缀剥离后转小写，
// 双下划线映射为键分隔符，如 APEX_QUOTA__BACKEND → quota.backend。
func WithEnvPrefix(prefix string) Option {
	return func(o *options) {
		o.envPrefix = prefix
	}
}

// Config 一份已加载的配置。并发只读。
type Config struct {
	k      *koanf.Koanf
	path   string
	format Format
	opts   *options
}

// New 从文件加载配置，按扩展名检测格式（.yaml/.yml/.json）。
func New(path string, opts ...Option) (*Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	format, err := detectFormat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	cfg, err := NewBytes(data, format, opts...)
	if err != nil {
		return nil, err
	}
	cfg.path = path
	return cfg, nil
}

// NewBytes 从字节数据加载配置，需显式指定格式。
// 空数据产出空配置，Unmarshal 得到目标结构体的零值。
func NewBytes(data []byte, format Format, opts ...Option) (*Config, error) {
	parser, err := parserFor(format)
	if err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	k := koanf.New(o.delim)
	if len(data) > 0 {
		if err := k.Load(rawbytes.Provider(data), parser); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParseFailed, err)
		}
	}

	// 环境变量后加载，覆盖文件中的同名键。
	if o.envPrefix != "" {
		provider := env.Provider(o.envPrefix, o.delim, func(key string) string {
			key = strings.ToLower(strings.TrimPrefix(key, o.envPrefix))
			return strings.ReplaceAll(key, "__", o.delim)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParseFailed, err)
		}
	}

	return &Config{k: k, format: format, opts: o}, nil
}

// Client 返回底层 koanf 实例，用于 koanf 的全部原生操作。
func (c *Config) Client() *koanf.Koanf { return c.k }

// Unmarshal 把指定路径的配置反序列化到目标结构体。
// path 为空时反序列化整份配置。
func (c *Config) Unmarshal(path string, target any) error {
	if err := c.k.UnmarshalWithConf(path, target, koanf.UnmarshalConf{Tag: c.opts.tag}); err != nil {
		return fmt.Errorf("%w: %w", ErrUnmarshalFailed, err)
	}
	return nil
}

// MustUnmarshal 与 Unmarshal 相同，失败时 panic。用于启动期的必要配置。
func (c *Config) MustUnmarshal(path string, target any) {
	if err := c.Unmarshal(path, target); err != nil {
		panic(err)
	}
}

// Path 返回配置文件路径，从字节数据创建时为空。
func (c *Config) Path() string { return c.path }

// Format 返回配置格式。
func (c *Config) Format() Format { return c.format }

func detectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func parserFor(format Format) (koanf.Parser, error) {
	switch format {
	case FormatYAML:
		return kyaml.Parser(), nil
	case FormatJSON:
		return kjson.Parser(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}
