package cel

import (
	"path/filepath"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"

	"github.com/tinyvillage/villagehub/internal/domain/item"
)

// NewItemEnvironment creates the CEL environment item filters compile against.
//   - Variables: id, name, description, type, is_for_trade, is_for_donation, owner, images
//   - Functions: glob(pattern, s), plus the strings and sets extensions
func NewItemEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		ext.Sets(),

		cel.Variable("id", cel.IntType),
		cel.Variable("name", cel.StringType),
		cel.Variable("description", cel.StringType),
		cel.Variable("type", cel.StringType),
		cel.Variable("is_for_trade", cel.BoolType),
		cel.Variable("is_for_donation", cel.BoolType),
		cel.Variable("owner", cel.StringType),
		cel.Variable("images", cel.ListType(cel.StringType)),

		// glob: shell-style match, e.g. glob("*lamp*", name)
		cel.Function("glob",
			cel.Overload("glob_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(pattern, s ref.Val) ref.Val {
					p, ok1 := pattern.Value().(string)
					v, ok2 := s.Value().(string)
					if !ok1 || !ok2 {
						return types.Bool(false)
					}
					matched, _ := filepath.Match(p, v)
					return types.Bool(matched)
				}),
			),
		),
	)
}

// activation maps an item onto the environment's variables.
func activation(it item.Item) map[string]any {
	images := it.Images
	if images == nil {
		images = []string{}
	}
	return map[string]any{
		"id":              it.ID,
		"name":            it.Name,
		"description":     it.Description,
		"type":            string(it.Type),
		"is_for_trade":    it.IsForTrade,
		"is_for_donation": it.IsForDonation,
		"owner":           it.OwnerUsername,
		"images":          images,
	}
}
