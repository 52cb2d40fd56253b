package runtime

import "testing"

func TestCatalogDefinitionsAreConsistent(t *testing.T) {
	if len(Catalog) != 12 {
		t.Errorf("expected 12 task types, got %d", len(Catalog))
	}

	entryPoints := 0
	for taskType, def := range Catalog {
		if def.Type != taskType {
			t.Errorf("catalog key %s disagrees with definition type %s", taskType, def.Type)
		}
		if def.Label == "" {
			t.Errorf("task %s has no label", taskType)
		}
		if def.Credits <= 0 {
			t.Errorf("task %s has non-positive credit cost %d", taskType, def.Credits)
		}
		if def.IsEntryPoint {
			entryPoints++
			if len(def.Inputs) == 0 {
				t.Errorf("entry point %s declares no inputs", taskType)
			}
		}
	}
	if entryPoints != 1 {
		t.Errorf("expected exactly one entry-point task, got %d", entryPoints)
	}
}

func TestGetTaskDefinition(t *testing.T) {
	def := GetTaskDefinition(TaskLaunchBrowser)
	if !def.IsEntryPoint || def.Credits != 5 {
		t.Errorf("unexpected launch browser definition: %+v", def)
	}

	if _, ok := def.Input("Website Url"); !ok {
		t.Error("expected Website Url input on launch browser")
	}
	if _, ok := def.Input("nope"); ok {
		t.Error("expected lookup of unknown input to fail")
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic for unknown task type")
		}
	}()
	GetTaskDefinition("NOT_A_TASK")
}
