// Package main is the entry point for skin-relay.
package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang/v2"
	"github.com/spf13/cobra"
)

const (
	defaultConfigFile = "config.yaml"
	appName           = "skin-relay"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Resilient gateway for LLM style transformations",
	Long: `skin-relay rewrites text in a chosen style ("skin") through an
OpenAI-compatible chat endpoint. It screens input for prompt injection,
enforces per-IP, per-user and per-operation quotas, queues callers behind a
concurrency limit, retries transient upstream failures and screens the
model's output before returning it.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file path (default: ./"+defaultConfigFile+" or ~/.config/"+appName+"/"+defaultConfigFile+")")
}

func main() {
	if err := fang.Execute(context.Background(), rootCmd); err != nil {
		os.Exit(1)
	}
}
