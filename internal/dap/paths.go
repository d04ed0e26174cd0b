package dap

import (
	"runtime"
	"strings"

	"github.com/ctagard/twx-dap/internal/config"
)

// resolvePathStyle turns "auto" into the style of the host operating system
func resolvePathStyle(style config.PathStyle) config.PathStyle {
	if style != config.PathStyleAuto && style != "" {
		return style
	}
	if runtime.GOOS == "windows" {
		return config.PathStyleWindows
	}
	return config.PathStylePosix
}

// NormalizePath rewrites a frontend path into the form the target indexes scripts by.
// Windows-style paths get forward slashes and an upper-case drive letter; posix
// paths are returned unchanged. The transform is idempotent.
func NormalizePath(path string, style config.PathStyle) string {
	if resolvePathStyle(style) != config.PathStyleWindows {
		return path
	}

	path = strings.ReplaceAll(path, `\`, "/")
	if len(path) >= 2 && path[1] == ':' && isASCIILetter(path[0]) {
		path = strings.ToUpper(path[:1]) + path[1:]
	}
	return path
}

func isASCIILetter(b byte) bool {
	return ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

// baseName returns the last segment of a path using either separator
func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
