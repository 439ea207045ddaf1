package buildinfo

// Version 在 Release 构建时通过 -ldflags 注入，例如：
// -X github.com/yuqie6/Arcana/internal/pkg/buildinfo.Version=v0.3.0
var Version = "v0.3.0-dev"

// Commit 在 Release 构建时可选注入 git commit，例如：
// -X github.com/yuqie6/Arcana/internal/pkg/buildinfo.Commit=abcdef1
var Commit = "unknown"

// Mode 构建模式：development / production。
// Release 构建注入 production，用于禁用 Reset、Rollback 等开发期操作。
var Mode = "development"

// IsProduction 是否为生产构建
func IsProduction() bool {
	return Mode == "production"
}
