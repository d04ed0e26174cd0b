package launchconfig

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ctagard/twx-dap/pkg/types"
)

// ResolveAttachArguments resolves the variables of a ThingWorx configuration and
// converts it into attach arguments. Fields left empty stay absent so that the
// session reports them as missing.
func ResolveAttachArguments(cfg *DebugConfiguration, ctx *ResolutionContext) (*types.AttachArguments, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}
	if ctx == nil {
		ctx = &ResolutionContext{}
	}

	if missing := missingInputs(cfg, ctx.InputValues); len(missing) > 0 {
		return nil, &MissingInputsError{Inputs: missing}
	}

	args := &types.AttachArguments{UseSSL: cfg.UseSSL}

	domain, err := ResolveVariables(cfg.ThingworxDomain, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve thingworxDomain: %w", err)
	}
	if domain != "" {
		args.ThingworxDomain = &domain
	}

	appKey, err := ResolveVariables(cfg.ThingworxAppKey, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve thingworxAppKey: %w", err)
	}
	if appKey != "" {
		args.ThingworxAppKey = &appKey
	}

	port, err := ResolveVariables(string(cfg.ThingworxPort), ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve thingworxPort: %w", err)
	}
	if port != "" {
		n, err := strconv.ParseFloat(port, 64)
		if err != nil {
			return nil, fmt.Errorf("thingworxPort %q is not a number", port)
		}
		args.ThingworxPort = &n
	}

	return args, nil
}

func missingInputs(cfg *DebugConfiguration, inputValues map[string]string) []string {
	var missing []string
	seen := make(map[string]bool)
	for _, field := range []string{cfg.ThingworxDomain, string(cfg.ThingworxPort), cfg.ThingworxAppKey} {
		for _, id := range FindRequiredInputs(field) {
			if _, ok := inputValues[id]; !ok && !seen[id] {
				seen[id] = true
				missing = append(missing, id)
			}
		}
	}
	return missing
}

// MissingInputsError is returned when required ${input:} values are not provided.
type MissingInputsError struct {
	Inputs []string
}

func (e *MissingInputsError) Error() string {
	return fmt.Sprintf("missing input values: %v", e.Inputs)
}

// IsMissingInputsError checks if an error is a MissingInputsError.
func IsMissingInputsError(err error) (*MissingInputsError, bool) {
	var e *MissingInputsError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
