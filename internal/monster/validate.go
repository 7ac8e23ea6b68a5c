package monster

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// maxExactInt bounds floats accepted as integers; beyond it float64 cannot
// represent every integer.
const maxExactInt = 1 << 53

// Validate checks raw against the record schema and returns the coerced
// record. raw is a loosely-typed tree as produced by [ParseResponse] or
// encoding/json: map[string]any, []any, string, json.Number, float64, int,
// int64, bool or nil.
//
// Fields are checked in wire order and the first failure is returned as a
// [*ValidationError]. Keys outside the schema are ignored. Validate never
// panics and never returns a partially filled record.
func Validate(raw any) (*Record, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		if raw == nil {
			return nil, invalid("response", MissingField, "no JSON object")
		}
		return nil, invalid("response", WrongType, "expected a JSON object, got %s", typeName(raw))
	}

	var (
		r   Record
		err error
	)

	if r.Name, err = requireString(obj, "name", "name"); err != nil {
		return nil, err
	}

	sizeText, err := requireString(obj, "size", "size")
	if err != nil {
		return nil, err
	}
	sz, ok := ParseSize(sizeText)
	if !ok {
		return nil, invalid("size", OutOfRange, "%q is not one of %v", sizeText, Sizes)
	}
	r.Size = sz

	if r.Type, err = requireString(obj, "type", "type"); err != nil {
		return nil, err
	}
	if r.Alignment, err = requireString(obj, "alignment", "alignment"); err != nil {
		return nil, err
	}

	if r.ArmorClass, err = requirePositive(obj, "armor_class"); err != nil {
		return nil, err
	}
	if r.HitPoints, err = requirePositive(obj, "hit_points"); err != nil {
		return nil, err
	}

	if r.Abilities, err = validateAbilities(obj["abilities"]); err != nil {
		return nil, err
	}
	if r.Speed, err = validateSpeed(obj["speed"]); err != nil {
		return nil, err
	}

	if r.SpecialAbilities, err = validateFeatures(obj["special_abilities"], "special_abilities"); err != nil {
		return nil, err
	}
	if r.Actions, err = validateFeatures(obj["actions"], "actions"); err != nil {
		return nil, err
	}

	if r.Lore, err = requireString(obj, "lore", "lore"); err != nil {
		return nil, err
	}

	return &r, nil
}

// Validate checks a typed record against the same rules as the package-level
// [Validate]. It lets sinks refuse records built outside the pipeline.
func (r *Record) Validate() error {
	if r == nil {
		return invalid("response", MissingField, "nil record")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return invalid("response", WrongType, "encode: %v", err)
	}
	tree, err := decodeTree(data)
	if err != nil {
		return invalid("response", WrongType, "decode: %v", err)
	}
	_, err = Validate(tree)
	return err
}

func requireString(obj map[string]any, key, path string) (string, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return "", invalid(path, MissingField, "required")
	}
	s, ok := v.(string)
	if !ok {
		return "", invalid(path, WrongType, "expected a string, got %s", typeName(v))
	}
	if strings.TrimSpace(s) == "" {
		return "", invalid(path, Empty, "must not be blank")
	}
	return s, nil
}

func requirePositive(obj map[string]any, key string) (int, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return 0, invalid(key, MissingField, "required")
	}
	n, err := toInt(v, key)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, invalid(key, OutOfRange, "must be positive, got %d", n)
	}
	return n, nil
}

// toInt coerces numbers, integral floats and numeric strings to int.
func toInt(v any, path string) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		if x > maxExactInt || x < -maxExactInt {
			return 0, invalid(path, OutOfRange, "%d is too large", x)
		}
		return int(x), nil
	case float64:
		return floatToInt(x, path)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return toInt(i, path)
		}
		f, err := x.Float64()
		if err != nil {
			return 0, invalid(path, WrongType, "%q is not a number", x.String())
		}
		return floatToInt(f, path)
	case string:
		s := strings.TrimSpace(x)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return toInt(i, path)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, invalid(path, WrongType, "%q is not an integer", x)
		}
		return floatToInt(f, path)
	default:
		return 0, invalid(path, WrongType, "expected an integer, got %s", typeName(v))
	}
}

func floatToInt(f float64, path string) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, invalid(path, WrongType, "%v is not an integer", f)
	}
	if math.Abs(f) > maxExactInt {
		return 0, invalid(path, OutOfRange, "%v is too large", f)
	}
	return int(f), nil
}

func validateAbilities(v any) (Abilities, error) {
	var a Abilities
	if v == nil {
		return a, invalid("abilities", MissingField, "required")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return a, invalid("abilities", WrongType, "expected an object, got %s", typeName(v))
	}

	// Group the given keys by ability so "STR" and "strength" both count.
	given := make(map[string][]string, len(obj))
	for k := range obj {
		norm := strings.ToLower(strings.TrimSpace(k))
		for _, ab := range abilityTable {
			if norm == ab.key || norm == ab.abbr {
				given[ab.key] = append(given[ab.key], k)
			}
		}
	}

	for _, ab := range abilityTable {
		path := "abilities." + ab.key
		keys := given[ab.key]
		slices.Sort(keys)

		var (
			score int
			found bool
		)
		for _, k := range keys {
			raw := obj[k]
			if raw == nil {
				continue
			}
			n, err := toInt(raw, path)
			if err != nil {
				return a, err
			}
			if found && n != score {
				return a, invalid(path, WrongType, "conflicting values %d and %d", score, n)
			}
			score, found = n, true
		}
		if !found {
			return a, invalid(path, MissingField, "required")
		}
		if score < MinAbilityScore || score > MaxAbilityScore {
			return a, invalid(path, OutOfRange, "must be between %d and %d, got %d", MinAbilityScore, MaxAbilityScore, score)
		}
		*ab.get(&a) = score
	}
	return a, nil
}

func validateSpeed(v any) (Speed, error) {
	if v == nil {
		return nil, invalid("speed", MissingField, "required")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, invalid("speed", WrongType, "expected an object, got %s", typeName(v))
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	speed := make(Speed, len(SpeedModes))
	for _, k := range keys {
		mode := strings.ToLower(strings.TrimSpace(k))
		if !isSpeedMode(mode) || obj[k] == nil {
			continue
		}
		path := "speed." + mode
		n, err := toInt(obj[k], path)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, invalid(path, OutOfRange, "must not be negative, got %d", n)
		}
		if prev, dup := speed[mode]; dup && prev != n {
			return nil, invalid(path, WrongType, "conflicting values %d and %d", prev, n)
		}
		speed[mode] = n
	}
	if len(speed) == 0 {
		return nil, invalid("speed", Empty, "at least one of %v is required", SpeedModes)
	}
	return speed, nil
}

func validateFeatures(v any, path string) ([]Feature, error) {
	if v == nil {
		return nil, invalid(path, MissingField, "required")
	}
	items, ok := v.([]any)
	if !ok {
		return nil, invalid(path, WrongType, "expected a list, got %s", typeName(v))
	}
	if len(items) == 0 {
		return nil, invalid(path, Empty, "at least one entry is required")
	}

	out := make([]Feature, 0, len(items))
	for i, item := range items {
		itemPath := fmt.Sprintf("%s[%d]", path, i)
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, invalid(itemPath, WrongType, "expected an object, got %s", typeName(item))
		}
		name, err := requireString(obj, "name", itemPath+".name")
		if err != nil {
			return nil, err
		}
		desc, err := requireString(obj, "description", itemPath+".description")
		if err != nil {
			return nil, err
		}
		out = append(out, Feature{Name: name, Description: desc})
	}
	return out, nil
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, float32, int, int64, int32:
		return "number"
	case []any:
		return "list"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
