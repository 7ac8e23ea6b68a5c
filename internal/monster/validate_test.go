package monster_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/bestiary/internal/monster"
)

// validTree returns a fresh, fully valid raw record as a model would emit it.
func validTree() map[string]any {
	return map[string]any{
		"name":        "Gloomfang Lurker",
		"size":        "Large",
		"type":        "Aberration",
		"alignment":   "Neutral Evil",
		"armor_class": json.Number("15"),
		"hit_points":  json.Number("110"),
		"abilities": map[string]any{
			"strength":     json.Number("18"),
			"dexterity":    json.Number("14"),
			"constitution": json.Number("16"),
			"intelligence": json.Number("9"),
			"wisdom":       json.Number("12"),
			"charisma":     json.Number("7"),
		},
		"speed": map[string]any{
			"walk":  json.Number("30"),
			"climb": json.Number("20"),
		},
		"special_abilities": []any{
			map[string]any{"name": "Shadow Meld", "description": "Invisible in dim light."},
		},
		"actions": []any{
			map[string]any{"name": "Bite", "description": "Melee Weapon Attack: +7 to hit, 2d10+4 piercing."},
			map[string]any{"name": "Dread Howl", "description": "DC 14 Wisdom save or frightened."},
		},
		"lore": "It hunts the lamplighters of drowned cities.",
	}
}

func validRecord() *monster.Record {
	return &monster.Record{
		Name:       "Gloomfang Lurker",
		Size:       monster.SizeLarge,
		Type:       "Aberration",
		Alignment:  "Neutral Evil",
		ArmorClass: 15,
		HitPoints:  110,
		Abilities: monster.Abilities{
			Strength: 18, Dexterity: 14, Constitution: 16,
			Intelligence: 9, Wisdom: 12, Charisma: 7,
		},
		Speed: monster.Speed{"walk": 30, "climb": 20},
		SpecialAbilities: []monster.Feature{
			{Name: "Shadow Meld", Description: "Invisible in dim light."},
		},
		Actions: []monster.Feature{
			{Name: "Bite", Description: "Melee Weapon Attack: +7 to hit, 2d10+4 piercing."},
			{Name: "Dread Howl", Description: "DC 14 Wisdom save or frightened."},
		},
		Lore: "It hunts the lamplighters of drowned cities.",
	}
}

func TestValidate_Accepts(t *testing.T) {
	t.Parallel()

	got, err := monster.Validate(validTree())
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if diff := cmp.Diff(validRecord(), got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate_RoundTripsEncode(t *testing.T) {
	t.Parallel()

	want := validRecord()
	data, err := monster.Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := monster.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	if err := want.Validate(); err != nil {
		t.Errorf("Record.Validate: %v", err)
	}
}

func TestValidate_Coercion(t *testing.T) {
	t.Parallel()

	tree := validTree()
	tree["size"] = "  huge "
	tree["armor_class"] = "17"
	tree["hit_points"] = float64(150)
	tree["abilities"] = map[string]any{
		"STR": 20, "Dex": int64(12), "con": "18", "INT": 3.0, "wis": json.Number("10"), "Charisma": json.Number("8.0"),
	}
	tree["speed"] = map[string]any{"Walk": "40", "hover": 10, "fly": nil}
	tree["extra_field"] = []any{"ignored"}

	got, err := monster.Validate(tree)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.Size != monster.SizeHuge {
		t.Errorf("size = %q, want Huge", got.Size)
	}
	if got.ArmorClass != 17 || got.HitPoints != 150 {
		t.Errorf("ac/hp = %d/%d, want 17/150", got.ArmorClass, got.HitPoints)
	}
	want := monster.Abilities{Strength: 20, Dexterity: 12, Constitution: 18, Intelligence: 3, Wisdom: 10, Charisma: 8}
	if diff := cmp.Diff(want, got.Abilities); diff != "" {
		t.Errorf("abilities mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(monster.Speed{"walk": 40}, got.Speed); diff != "" {
		t.Errorf("speed mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mutate    func(m map[string]any)
		wantField string
		wantKind  monster.ErrorKind
	}{
		{"missing name", func(m map[string]any) { delete(m, "name") }, "name", monster.MissingField},
		{"null name", func(m map[string]any) { m["name"] = nil }, "name", monster.MissingField},
		{"blank name", func(m map[string]any) { m["name"] = "   " }, "name", monster.Empty},
		{"numeric name", func(m map[string]any) { m["name"] = json.Number("7") }, "name", monster.WrongType},
		{"unknown size", func(m map[string]any) { m["size"] = "Colossal" }, "size", monster.OutOfRange},
		{"missing size", func(m map[string]any) { delete(m, "size") }, "size", monster.MissingField},
		{"missing type", func(m map[string]any) { delete(m, "type") }, "type", monster.MissingField},
		{"missing alignment", func(m map[string]any) { delete(m, "alignment") }, "alignment", monster.MissingField},
		{"missing armor class", func(m map[string]any) { delete(m, "armor_class") }, "armor_class", monster.MissingField},
		{"negative armor class", func(m map[string]any) { m["armor_class"] = json.Number("-1") }, "armor_class", monster.OutOfRange},
		{"armor class with prose", func(m map[string]any) { m["armor_class"] = "15 (natural armor)" }, "armor_class", monster.WrongType},
		{"fractional armor class", func(m map[string]any) { m["armor_class"] = 12.5 }, "armor_class", monster.WrongType},
		{"boolean hit points", func(m map[string]any) { m["hit_points"] = true }, "hit_points", monster.WrongType},
		{"missing hit points", func(m map[string]any) { delete(m, "hit_points") }, "hit_points", monster.MissingField},
		{"zero hit points", func(m map[string]any) { m["hit_points"] = 0 }, "hit_points", monster.OutOfRange},
		{"huge hit points", func(m map[string]any) { m["hit_points"] = json.Number("1e300") }, "hit_points", monster.OutOfRange},
		{"missing abilities", func(m map[string]any) { delete(m, "abilities") }, "abilities", monster.MissingField},
		{"abilities as list", func(m map[string]any) { m["abilities"] = []any{} }, "abilities", monster.WrongType},
		{"missing wisdom", func(m map[string]any) {
			delete(m["abilities"].(map[string]any), "wisdom")
		}, "abilities.wisdom", monster.MissingField},
		{"zero strength", func(m map[string]any) {
			m["abilities"].(map[string]any)["strength"] = 0
		}, "abilities.strength", monster.OutOfRange},
		{"charisma above cap", func(m map[string]any) {
			m["abilities"].(map[string]any)["charisma"] = 31
		}, "abilities.charisma", monster.OutOfRange},
		{"conflicting dexterity", func(m map[string]any) {
			m["abilities"].(map[string]any)["dex"] = 3
		}, "abilities.dexterity", monster.WrongType},
		{"missing speed", func(m map[string]any) { delete(m, "speed") }, "speed", monster.MissingField},
		{"no known speed mode", func(m map[string]any) { m["speed"] = map[string]any{"teleport": 60} }, "speed", monster.Empty},
		{"negative swim", func(m map[string]any) {
			m["speed"].(map[string]any)["swim"] = -5
		}, "speed.swim", monster.OutOfRange},
		{"speed with unit", func(m map[string]any) {
			m["speed"].(map[string]any)["walk"] = "30 ft."
		}, "speed.walk", monster.WrongType},
		{"missing special abilities", func(m map[string]any) { delete(m, "special_abilities") }, "special_abilities", monster.MissingField},
		{"empty special abilities", func(m map[string]any) { m["special_abilities"] = []any{} }, "special_abilities", monster.Empty},
		{"special abilities as string", func(m map[string]any) { m["special_abilities"] = "none" }, "special_abilities", monster.WrongType},
		{"missing actions", func(m map[string]any) { delete(m, "actions") }, "actions", monster.MissingField},
		{"action not an object", func(m map[string]any) {
			m["actions"] = []any{m["actions"].([]any)[0], "Claw"}
		}, "actions[1]", monster.WrongType},
		{"action without name", func(m map[string]any) {
			m["actions"].([]any)[1] = map[string]any{"description": "x"}
		}, "actions[1].name", monster.MissingField},
		{"action blank description", func(m map[string]any) {
			m["actions"].([]any)[0] = map[string]any{"name": "Bite", "description": ""}
		}, "actions[0].description", monster.Empty},
		{"missing lore", func(m map[string]any) { delete(m, "lore") }, "lore", monster.MissingField},
		{"first failure wins", func(m map[string]any) {
			delete(m, "lore")
			delete(m, "hit_points")
		}, "hit_points", monster.MissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tree := validTree()
			tt.mutate(tree)

			rec, err := monster.Validate(tree)
			if rec != nil {
				t.Errorf("expected no record, got %+v", rec)
			}
			var ve *monster.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %T: %v", err, err)
			}
			if ve.Field != tt.wantField || ve.Kind != tt.wantKind {
				t.Errorf("got %s(%s), want %s(%s)", ve.Kind, ve.Field, tt.wantKind, tt.wantField)
			}
			if !errors.Is(err, monster.ErrInvalid) {
				t.Error("expected errors.Is(err, ErrInvalid)")
			}
		})
	}
}

func TestValidate_MissingTopLevelField(t *testing.T) {
	t.Parallel()

	for key := range validTree() {
		t.Run(key, func(t *testing.T) {
			t.Parallel()
			tree := validTree()
			delete(tree, key)

			_, err := monster.Validate(tree)
			var ve *monster.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %T: %v", err, err)
			}
			if ve.Field != key || ve.Kind != monster.MissingField {
				t.Errorf("got %s(%s), want %s(%s)", ve.Kind, ve.Field, monster.MissingField, key)
			}
		})
	}
}

func TestValidate_NeverPanics(t *testing.T) {
	t.Parallel()

	inputs := []any{
		nil, "text", 42, true, []any{1, 2},
		map[string]any{},
		map[string]any{"name": map[string]any{}},
		map[string]any{"name": "x", "size": []any{"Large"}},
		map[string]any{"name": "x", "size": "Large", "type": "t", "alignment": "a",
			"armor_class": 1, "hit_points": 1, "abilities": map[string]any{"str": nil}},
	}
	for _, in := range inputs {
		if _, err := monster.Validate(in); err == nil {
			t.Errorf("Validate(%#v): expected error", in)
		}
	}
}

func TestModifier(t *testing.T) {
	t.Parallel()

	tests := []struct{ score, want int }{
		{1, -5}, {3, -4}, {8, -1}, {9, -1}, {10, 0}, {11, 0}, {12, 1}, {20, 5}, {30, 10},
	}
	for _, tt := range tests {
		if got := monster.Modifier(tt.score); got != tt.want {
			t.Errorf("Modifier(%d) = %d, want %d", tt.score, got, tt.want)
		}
	}
}

func TestClone(t *testing.T) {
	t.Parallel()

	orig := validRecord()
	c := orig.Clone()
	c.Speed["fly"] = 60
	c.Actions[0].Name = "Changed"
	if _, ok := orig.Speed["fly"]; ok {
		t.Error("clone shares speed map")
	}
	if orig.Actions[0].Name != "Bite" {
		t.Error("clone shares actions slice")
	}
}
