package dap

import "github.com/google/go-dap"

// Exception filter ids advertised to the frontend
const (
	FilterExceptions         = "exceptions"
	FilterCaughtExceptions   = "caughtExceptions"
	FilterUncaughtExceptions = "uncaughtExceptions"
)

// Capabilities returns the fixed capability set of the adapter
func Capabilities() dap.Capabilities {
	return dap.Capabilities{
		SupportsConfigurationDoneRequest:   true,
		SupportsEvaluateForHovers:          true,
		SupportsBreakpointLocationsRequest: true,
		SupportsCompletionsRequest:         true,
		CompletionTriggerCharacters:        []string{".", "["},
		SupportsExceptionFilterOptions:     true,
		ExceptionBreakpointFilters: []dap.ExceptionBreakpointsFilter{
			{
				Filter:            FilterExceptions,
				Label:             "All Exceptions",
				Description:       "Break whenever any exception is thrown",
				SupportsCondition: false,
			},
			{
				Filter:            FilterCaughtExceptions,
				Label:             "Caught Exceptions",
				Description:       "Break on exceptions handled by a catch block",
				SupportsCondition: false,
			},
			{
				Filter:            FilterUncaughtExceptions,
				Label:             "Uncaught Exceptions",
				Description:       "Break on exceptions that escape the service",
				SupportsCondition: false,
			},
		},
		SupportsExceptionInfoRequest: true,
		SupportsSetVariable:          true,
		// setExpression is declared so editors offer it, but requests are rejected
		SupportsSetExpression: true,

		SupportsStepBack:                  false,
		SupportsDataBreakpoints:           false,
		SupportsCancelRequest:             false,
		SupportsStepInTargetsRequest:      false,
		SupportsDisassembleRequest:        false,
		SupportsInstructionBreakpoints:    false,
		SupportsSteppingGranularity:       false,
		SupportsReadMemoryRequest:         false,
		SupportsWriteMemoryRequest:        false,
		SupportsFunctionBreakpoints:       false,
		SupportsConditionalBreakpoints:    false,
		SupportsHitConditionalBreakpoints: false,
	}
}

// exceptionFilterSet reports which of the three fixed filters are enabled
type exceptionFilterSet struct {
	All      bool
	Caught   bool
	Uncaught bool
}

func newExceptionFilterSet(args dap.SetExceptionBreakpointsArguments) exceptionFilterSet {
	var set exceptionFilterSet
	enable := func(id string) {
		switch id {
		case FilterExceptions:
			set.All = true
		case FilterCaughtExceptions:
			set.Caught = true
		case FilterUncaughtExceptions:
			set.Uncaught = true
		}
	}
	for _, opt := range args.FilterOptions {
		enable(opt.FilterId)
	}
	for _, id := range args.Filters {
		enable(id)
	}
	return set
}
