package launchconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Variable pattern matches ${...} expressions
var variablePattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveVariables replaces all ${...} variables in the given text.
func ResolveVariables(text string, ctx *ResolutionContext) (string, error) {
	if ctx == nil {
		ctx = &ResolutionContext{}
	}

	var lastErr error
	result := variablePattern.ReplaceAllStringFunc(text, func(match string) string {
		expr := match[2 : len(match)-1]

		resolved, err := resolveVariable(expr, ctx)
		if err != nil {
			lastErr = err
			return match
		}
		return resolved
	})

	return result, lastErr
}

func resolveVariable(expr string, ctx *ResolutionContext) (string, error) {
	switch {
	case expr == "workspaceFolder":
		return ctx.WorkspaceFolder, nil

	case expr == "workspaceFolderBasename":
		return filepath.Base(ctx.WorkspaceFolder), nil

	case expr == "userHome":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home: %w", err)
		}
		return home, nil

	case strings.HasPrefix(expr, "env:"):
		varName := strings.TrimPrefix(expr, "env:")
		if val, ok := ctx.EnvOverrides[varName]; ok {
			return val, nil
		}
		return os.Getenv(varName), nil

	case strings.HasPrefix(expr, "input:"):
		inputID := strings.TrimPrefix(expr, "input:")
		if val, ok := ctx.InputValues[inputID]; ok {
			return val, nil
		}
		return "", fmt.Errorf("missing input value for ${input:%s}", inputID)

	default:
		return "", fmt.Errorf("unsupported variable: ${%s}", expr)
	}
}

// FindRequiredInputs scans a text for ${input:...} variables and returns their IDs.
func FindRequiredInputs(text string) []string {
	var inputs []string
	seen := make(map[string]bool)

	for _, match := range variablePattern.FindAllStringSubmatch(text, -1) {
		inputID, ok := strings.CutPrefix(match[1], "input:")
		if ok && !seen[inputID] {
			seen[inputID] = true
			inputs = append(inputs, inputID)
		}
	}
	return inputs
}
