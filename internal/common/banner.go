package common

import (
	"fmt"
	"os"
	"strings"

	"github.com/ternarybob/banner"
)

// PrintBanner displays the application startup banner to stderr.
func PrintBanner(name string, config *Config, logger *Logger) {
	version := GetVersion()
	build := GetBuild()
	commit := GetGitCommit()

	lineColor := banner.ColorCyan
	textColor := banner.ColorBold + banner.ColorWhite
	width := 70
	hr := lineColor + strings.Repeat("═", width) + banner.ColorReset

	art := []string{
		`8888888b.       d8888 8888888 888       Y88b   d88P       d8888 8888888b.  8888888b. `,
		`888   Y88b     d88888   888   888        Y88b d88P       d88888 888   Y88b 888  "Y88b`,
		`888    888    d88P888   888   888         Y88o88P       d88P888 888    888 888    888`,
		`888   d88P   d88P 888   888   888          Y888P       d88P 888 888   d88P 888    888`,
		`8888888P"   d88P  888   888   888           888       d88P  888 8888888P"  888    888`,
		`888 T88b   d88P   888   888   888           888      d88P   888 888 T88b   888    888`,
		`888  T88b d8888888888   888   888           888     d8888888888 888  T88b  888  .d88P`,
		`888   T88b888     888 8888888 88888888      888    d88P     888 888   T88b 8888888P" `,
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "%s\n", hr)
	fmt.Fprintf(os.Stderr, "\n")
	for _, line := range art {
		fmt.Fprintf(os.Stderr, "%s%s%s\n", textColor, line, banner.ColorReset)
	}
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "%s  Distributed Job-Execution Orchestrator%s\n", textColor, banner.ColorReset)
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "%s\n", hr)
	fmt.Fprintf(os.Stderr, "\n")

	kvPad := 16
	kvLines := [][2]string{
		{"Component", name},
		{"Version", version},
		{"Build", build},
		{"Commit", commit},
		{"Environment", config.Environment},
		{"AWS Region", config.AWS.Region},
		{"Orders Table", config.AWS.DynamoDB.OrdersTable},
		{"Artifact Bucket", config.AWS.S3.Bucket},
	}
	for _, kv := range kvLines {
		fmt.Fprintf(os.Stderr, "%s  %-*s %s%s\n", textColor, kvPad, kv[0], kv[1], banner.ColorReset)
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "%s\n", hr)
	fmt.Fprintf(os.Stderr, "\n")

	logger.Info().
		Str("component", name).
		Str("version", version).
		Str("build", build).
		Str("commit", commit).
		Str("environment", config.Environment).
		Str("aws_region", config.AWS.Region).
		Msg("engine component started")
}

// PrintShutdownBanner displays the application shutdown banner to stderr.
func PrintShutdownBanner(name string, logger *Logger) {
	lineColor := banner.ColorCyan
	textColor := banner.ColorBold + banner.ColorWhite
	width := 48
	hr := lineColor + strings.Repeat("═", width) + banner.ColorReset

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "%s\n", hr)
	fmt.Fprintf(os.Stderr, "%s  RAILYARD — %s SHUTTING DOWN%s\n", textColor, strings.ToUpper(name), banner.ColorReset)
	fmt.Fprintf(os.Stderr, "%s\n", hr)
	fmt.Fprintf(os.Stderr, "\n")

	logger.Info().Str("component", name).Msg("engine component shutting down")
}
