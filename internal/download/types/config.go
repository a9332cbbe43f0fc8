package types

import "time"

// Transfer defaults mirror the invocation the downloader has always used:
// sixteen connections split into sixteen segments, five file slots.
const (
	DefaultConnections   = 16
	DefaultSegments      = 16
	DefaultParallelFiles = 5

	DefaultEndpoint = "https://huggingface.co"
	DefaultRevision = "main"

	DefaultPollInterval   = 200 * time.Millisecond
	DefaultTerminateGrace = 5 * time.Second

	// DiagnosticsLimit bounds how much process output is kept for error reports.
	DiagnosticsLimit = 4 * 1024

	Aria2Binary = "aria2c"
)

// TransferConfig is the engine-level view of the transfer settings.
type TransferConfig struct {
	Aria2Path      string
	Connections    int
	Segments       int
	ParallelFiles  int
	PollInterval   time.Duration
	TerminateGrace time.Duration
	Endpoint       string
	Revision       string
	Token          string
}

// DefaultTransferConfig returns a config populated with the stock values.
func DefaultTransferConfig() *TransferConfig {
	return &TransferConfig{
		Connections:    DefaultConnections,
		Segments:       DefaultSegments,
		ParallelFiles:  DefaultParallelFiles,
		PollInterval:   DefaultPollInterval,
		TerminateGrace: DefaultTerminateGrace,
		Endpoint:       DefaultEndpoint,
		Revision:       DefaultRevision,
	}
}

func (c *TransferConfig) GetConnections() int {
	if c == nil || c.Connections <= 0 {
		return DefaultConnections
	}
	return c.Connections
}

func (c *TransferConfig) GetSegments() int {
	if c == nil || c.Segments <= 0 {
		return DefaultSegments
	}
	return c.Segments
}

func (c *TransferConfig) GetParallelFiles() int {
	if c == nil || c.ParallelFiles <= 0 {
		return DefaultParallelFiles
	}
	return c.ParallelFiles
}

func (c *TransferConfig) GetPollInterval() time.Duration {
	if c == nil || c.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return c.PollInterval
}

func (c *TransferConfig) GetTerminateGrace() time.Duration {
	if c == nil || c.TerminateGrace <= 0 {
		return DefaultTerminateGrace
	}
	return c.TerminateGrace
}

func (c *TransferConfig) GetEndpoint() string {
	if c == nil || c.Endpoint == "" {
		return DefaultEndpoint
	}
	return c.Endpoint
}

func (c *TransferConfig) GetRevision() string {
	if c == nil || c.Revision == "" {
		return DefaultRevision
	}
	return c.Revision
}
