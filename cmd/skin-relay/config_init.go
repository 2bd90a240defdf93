package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default config file",
	Long:  `Generate a default skin-relay configuration file at ~/.config/skin-relay/config.yaml`,
	RunE:  runConfigInit,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().StringP("output", "o", "", "output path (default: ~/.config/skin-relay/config.yaml)")
	configInitCmd.Flags().Bool("force", false, "overwrite existing config file")
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return fmt.Errorf("failed to get output flag: %w", err)
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return fmt.Errorf("failed to get force flag: %w", err)
	}

	if output == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		output = defaultConfigPath(home)
	}

	if err := writeDefaultConfig(output, force); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Config file created at %s\n", output)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Set OPENAI_API_KEY (or edit upstream.api_key)")
	fmt.Fprintln(out, "  2. Edit the config file to set skins, quotas and the system prompt")
	fmt.Fprintf(out, "  3. Validate with: %s config validate --config %s\n", appName, output)
	fmt.Fprintf(out, "  4. Start the gateway: %s serve --config %s\n", appName, output)
	return nil
}

func writeDefaultConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

const defaultConfigTemplate = `# skin-relay configuration
# Environment variables are expanded (${VAR}); a .env file next to this
# file is loaded first. SKIN_RELAY_* variables override individual keys.

server:
  listen: "127.0.0.1:8787"
  # Require x-api-key on /v1 routes. Empty disables the check.
  api_key: "${SKIN_RELAY_SERVER_KEY}"
  # Header carrying the authenticated user ID for the user tier.
  user_header: X-User-ID
  # Honour user_header even when api_key is empty. Enable only behind a
  # proxy that sets it; otherwise callers pick their own user bucket.
  trust_user_header: false
  max_body_bytes: 1048576
  # Take the caller IP from X-Forwarded-For. Enable only behind a trusted proxy.
  trust_forwarded_for: false
  enable_http2: false

upstream:
  base_url: https://api.openai.com/v1
  api_key: "${OPENAI_API_KEY}"
  model: gpt-4o-mini
  # Per attempt.
  timeout_ms: 30000
  # Total attempts, the first included.
  max_retries: 3
  base_delay_ms: 1000
  max_delay_ms: 30000
  # Outbound calls per minute; 0 disables pacing.
  rpm: 0
  max_output_tokens: 1024

gateway:
  operation: transform
  max_concurrent: 5
  max_input_length: 10000
  skins:
    - kansai_banter
    - formal_keigo
    - pirate
    - shakespearean
    - corporate
    - gal_speak
  # system_prompt: "Rewrite the user's text in the %s style."
  extra_injection_patterns: []
  extra_leak_patterns: []

rate_limit:
  # memory, cache (shares cache.mode backend) or redis
  store: memory
  redis:
    addr: "127.0.0.1:6379"
    prefix: "skin-relay:rl:"
  ip:
    points: 100
    window_seconds: 60
    block_seconds: 60
  user:
    points: 1000
    window_seconds: 86400
    block_seconds: 3600
  operation:
    points: 100
    window_seconds: 3600
    block_seconds: 1800

cache:
  # single (ristretto), ha (olric) or disabled
  mode: single

health:
  circuit_breaker:
    failure_threshold: 5
    open_duration_ms: 30000
    half_open_probes: 3

logging:
  level: info
  format: console
  output: stderr
`
