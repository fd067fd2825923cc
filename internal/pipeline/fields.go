package pipeline

import (
	"github.com/google/uuid"

	"github.com/easeaico/persona-studio/internal/types"
)

// MergeFields reconciles a record's fields with the required labels of the
// active platform set and the freshly generated values. Locked fields pass
// through untouched; unlocked fields take the generated value, then the
// prior value, then empty. Labels outside the required set are dropped and
// newly required labels get fresh unlocked fields.
func MergeFields(existing []types.CharacterField, requiredLabels []string, generated map[string]string) []types.CharacterField {
	byLabel := make(map[string]types.CharacterField, len(existing))
	for _, f := range existing {
		byLabel[f.Label] = f
	}

	merged := make([]types.CharacterField, 0, len(requiredLabels))
	for _, label := range requiredLabels {
		prior, had := byLabel[label]
		if had && prior.Locked {
			merged = append(merged, prior)
			continue
		}

		value, generatedIt := generated[label]
		if !generatedIt && had {
			value = prior.Value
		}

		field := types.CharacterField{
			ID:     uuid.NewString(),
			Label:  label,
			Value:  value,
			Locked: false,
		}
		if had {
			field.ID = prior.ID
			field.Format = prior.Format
		}
		merged = append(merged, field)
	}
	return merged
}
