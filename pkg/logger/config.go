package logger

import "log/slog"

type Backend string

const (
	BackendStd Backend = "std" // text handler, human friendly
	BackendZap Backend = "zap" // JSON via slog-zap, sampled
)

type Config struct {
	Service    string
	Version    string
	InstanceID string

	Level   slog.Level
	Env     Env
	Backend Backend // default: zap for stage/prod, std for dev
	Debug   bool

	// Zap sampling knobs
	SampleInitial    int
	SampleThereafter int

	AddSource bool
}
