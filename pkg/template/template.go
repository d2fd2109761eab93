// Package template renders Go-template expressions against execution data.
package template

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/loomworks/loom/pkg/models"
)

// RenderWithContext renders input with the executor context exposed as
// .input, .node_results and .execution.
func RenderWithContext(input string, ectx *models.ExecutorContext) (any, error) {
	data := map[string]any{
		"input":        ectx.Input,
		"node_results": ectx.NodeResults,
		"iteration":    ectx.Iteration,
		"execution": map[string]any{
			"id":          ectx.ExecutionID,
			"workflow_id": ectx.WorkflowID,
			"user_id":     ectx.UserID,
		},
	}

	return Render(input, data)
}

// Render parses and executes templateStr against data. Output that looks like
// a JSON object or array is decoded before being returned, so templates can
// produce structured values, not just strings.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("render").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err != nil {
			return nil, fmt.Errorf("failed to parse rendered json '%s': %w", templateStr, err)
		}

		return jsonResult, nil
	}

	return result, nil
}

// AsBool interprets a rendered expression value as a boolean. Nil and the
// empty string count as true so that an edge without a meaningful condition
// is always followed.
func AsBool(exp any) (bool, error) {
	if exp == nil {
		return true, nil
	}

	switch v := exp.(type) {
	case bool:
		return v, nil
	case string:
		if v == "" {
			return true, nil
		}

		result, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("cannot convert string %q to boolean: %w", v, err)
		}

		return result, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	default:
		return false, fmt.Errorf("cannot convert %T to boolean", exp)
	}
}
