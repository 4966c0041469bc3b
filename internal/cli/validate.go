package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// ValidationIssue is one problem reported by validate.
type ValidationIssue struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// WorkflowSummary describes a valid definition.
type WorkflowSummary struct {
	Name  string `json:"name"`
	ID    string `json:"id"`
	Title string `json:"title"`
	Tasks int    `json:"tasks"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool              `json:"valid"`
	Workflows []WorkflowSummary `json:"workflows,omitempty"`
	Errors    []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <definitions-dir>",
		Short: "Check workflow definitions",
		Long: `Check the CUE workflow definitions in a directory.

Every workflow: <name> entry is checked against the workflow schema.
Task ids must be unique within a workflow and workflow ids unique across
the directory. All problems are reported, not just the first.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	// The ids filled in for definitions without one are never used.
	result, errs := LoadWorkflows(dir, nil)
	if result == nil {
		code := errorCode(errs[0], ErrCodeGeneric)
		_ = formatter.Error(code, errs[0].Error(), nil)
		return NewExitError(ExitCommandError, errs[0].Error())
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", result.FileCount, dir)

	out := ValidationResult{Valid: len(errs) == 0}
	for _, d := range result.Definitions {
		formatter.VerboseLog("Validated workflow: %s", d.Name)
		out.Workflows = append(out.Workflows, WorkflowSummary{
			Name:  d.Name,
			ID:    d.ID,
			Title: d.Title,
			Tasks: len(d.Tasks),
		})
	}
	for _, err := range errs {
		out.Errors = append(out.Errors, toIssue(err))
	}

	if out.Valid {
		if formatter.JSON() {
			return formatter.Success(out)
		}
		fmt.Fprintf(formatter.Writer, "✓ %d workflow(s) valid\n", len(out.Workflows))
		return nil
	}
	return outputValidationErrors(formatter, out)
}

func toIssue(err error) ValidationIssue {
	var le *LoadError
	if errors.As(err, &le) {
		return ValidationIssue{Code: le.Code, Field: le.Field, Message: le.Message, Line: le.Line()}
	}
	return ValidationIssue{Code: ErrCodeGeneric, Message: err.Error()}
}

func outputValidationErrors(formatter *OutputFormatter, out ValidationResult) error {
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(out.Errors)))

	if formatter.JSON() {
		first := out.Errors[0]
		if err := formatter.Failure(out, first.Code, first.Message); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, issue := range out.Errors {
		if issue.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", issue.Line)
		}
		if issue.Field != "" {
			fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", issue.Code, issue.Field, issue.Message)
		} else {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", issue.Code, issue.Message)
		}
	}
	return exitErr
}
