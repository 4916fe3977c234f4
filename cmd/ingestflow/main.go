package main

// ============================================================================
// 職責說明：
// 1. CLI 應用程式入口點
// 2. 初始化並執行 CLI 命令
// 3. 處理頂層錯誤與 panic recovery
//
// main.go 保持簡潔，所有邏輯在 internal/cli
// ============================================================================

import (
	"fmt"
	"os"

	"github.com/Aryankaushal82/ingest-flow-ui-dashboard/internal/cli"
)

// 由 CI 通過 -ldflags 注入
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "嚴重錯誤: %v\n", r)
			os.Exit(1)
		}
	}()

	rootCmd := cli.BuildCLI()
	if version != "dev" {
		rootCmd.Version = fmt.Sprintf("%s (commit: %s)", version, commit)
	}

	// cobra 已將錯誤印到 stderr
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
