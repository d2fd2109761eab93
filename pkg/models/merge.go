package models

import "dario.cat/mergo"

// MergeData deep-merges delta into base and returns the merged map. Nested
// maps are merged key by key, scalars and slices from delta overwrite, and
// neither input is mutated. Applying the same delta twice is idempotent.
func MergeData(base, delta map[string]any) (map[string]any, error) {
	merged := map[string]any{}
	if base != nil {
		merged = cloneValue(base).(map[string]any)
	}

	if len(delta) == 0 {
		return merged, nil
	}

	err := mergo.Merge(&merged, cloneValue(delta).(map[string]any), mergo.WithOverride)
	if err != nil {
		return nil, err
	}

	return merged, nil
}
