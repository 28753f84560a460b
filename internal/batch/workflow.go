package batch

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/symbridge/symbridge/internal/bridgeerr"
)

// Workflow is a named sequence of steps with templated arguments
// (`{{input.field}}`, `{{stepId.result.path}}`), dependency order given by
// declaration order (spec.md §4.8 — "there is no implicit parallelism").
//
// §9's REDESIGN FLAGS calls out the source's string-templated workflow
// steps for replacement by a typed path expression evaluated against a
// result map: resolveTemplate below checks every template reference of a
// step against the accumulated result map via gjson before that step is
// dispatched, instead of substituting blindly and letting a missing field
// surface as a JSON null deep inside a tool call. The check runs step by
// step, not for the whole workflow up front: a reference in a later step
// that does not resolve is refused only when that step is reached, after
// the earlier steps have already run.
type Workflow struct {
	Name  string
	Steps []WorkflowStep
}

// WorkflowStep is one step of a Workflow: a tool name plus a raw JSON
// argument template whose `{{...}}` placeholders are resolved against the
// accumulated result set before dispatch.
type WorkflowStep struct {
	ID       string
	Tool     string
	ArgsTmpl json.RawMessage
}

var templateRe = regexp.MustCompile(`\{\{\s*([a-zA-Z_][\w.]*)\s*\}\}`)

// Run executes a workflow's steps in declared order (sequential, never
// parallel — spec.md §4.8), resolving each step's argument template
// against `{"input": input, "<stepId>": {"result": ...}}` before
// dispatching it, and refusing the step before dispatch if any
// placeholder does not resolve to a present value.
func Run(ctx context.Context, wf Workflow, input any, dispatch Dispatch) ([]OperationResult, error) {
	resultSet := map[string]any{"input": input}

	results := make([]OperationResult, 0, len(wf.Steps))
	for _, step := range wf.Steps {
		resolved, err := resolveTemplate(step.ArgsTmpl, resultSet)
		if err != nil {
			return results, bridgeerr.Wrap(err, bridgeerr.ValidationError, "resolve workflow step \""+step.ID+"\" arguments")
		}

		var args map[string]any
		if err := json.Unmarshal(resolved, &args); err != nil {
			return results, bridgeerr.Wrap(err, bridgeerr.ValidationError, "workflow step \""+step.ID+"\" produced invalid arguments")
		}

		res, err := dispatch(ctx, step.Tool, args, false)
		results = append(results, OperationResult{ID: step.ID, Tool: step.Tool, Result: res, Err: err})
		if err != nil {
			return results, nil
		}

		resultSet[step.ID] = map[string]any{"result": res}
	}
	return results, nil
}

// resolveTemplate walks tmpl's raw JSON text and replaces every
// `{{path.expr}}` occurrence with the JSON-encoded value gjson finds at
// that path within resultSet, refusing (returning an error) if the path
// does not resolve, so the step is never dispatched with a missing value.
func resolveTemplate(tmpl json.RawMessage, resultSet map[string]any) (json.RawMessage, error) {
	doc, err := json.Marshal(resultSet)
	if err != nil {
		return nil, err
	}

	raw := string(tmpl)
	var resolveErr error
	out := templateRe.ReplaceAllStringFunc(raw, func(m string) string {
		sub := templateRe.FindStringSubmatch(m)
		path := sub[1]
		val := gjson.GetBytes(doc, path)
		if !val.Exists() {
			if resolveErr == nil {
				resolveErr = bridgeerr.Newf(bridgeerr.ValidationError, "template path %q does not resolve against prior results", path)
			}
			return m
		}
		encoded, _ := json.Marshal(val.Value())
		// The value's full JSON encoding (quotes included for strings) is
		// substituted, so a placeholder stands unquoted in the template
		// where a JSON value is expected: {"filePath": {{input.filePath}}}.
		return string(encoded)
	})
	if resolveErr != nil {
		return nil, resolveErr
	}
	return json.RawMessage(out), nil
}

// ResolveIntoArgs is a convenience used when a single template value must
// be spliced into a specific JSON pointer path of an existing args
// document (rather than textually substituted), using sjson for the
// typed, path-addressed write the REDESIGN FLAGS note calls for.
func ResolveIntoArgs(argsJSON []byte, path string, value any) ([]byte, error) {
	return sjson.SetBytes(argsJSON, path, value)
}
