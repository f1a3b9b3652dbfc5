package config

import (
	"fmt"
	"net"
	"strings"
)

var (
	MinBlockIntervalSeconds = uint64(1)
	MaxBlockIntervalSeconds = uint64(600)
)

// Validate checks ranges and required fields.
func (c *Config) Validate() error {
	if c.ChainID == 0 {
		return fmt.Errorf("config: ChainID must be non-zero")
	}
	if c.BlockIntervalSeconds < MinBlockIntervalSeconds || c.BlockIntervalSeconds > MaxBlockIntervalSeconds {
		return fmt.Errorf("config: BlockIntervalSeconds must be within [%d, %d]", MinBlockIntervalSeconds, MaxBlockIntervalSeconds)
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: DataDir required")
	}
	if _, _, err := net.SplitHostPort(c.RPCAddress); err != nil {
		return fmt.Errorf("config: RPCAddress: %w", err)
	}
	if c.RPC.RequestsPerMinute < 0 || c.RPC.Burst < 0 {
		return fmt.Errorf("config: RPC rate limits must not be negative")
	}
	if c.RPC.RequestsPerMinute > 0 && c.RPC.Burst == 0 {
		return fmt.Errorf("config: RPC.Burst must be positive when RequestsPerMinute is set")
	}
	if secret := strings.TrimSpace(c.RPC.JWTSecret); secret != "" && len(secret) < 32 {
		return fmt.Errorf("config: RPC.JWTSecret must be at least 32 bytes")
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 {
		return fmt.Errorf("config: Log rotation limits must not be negative")
	}
	if (c.Telemetry.Traces || c.Telemetry.Metrics) && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		return fmt.Errorf("config: Telemetry.Endpoint required when traces or metrics are enabled")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("config: Telemetry.SampleRatio must be within [0, 1]")
	}
	return nil
}
