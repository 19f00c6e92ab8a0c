// Package testutil provides shared test helpers for setting up vaults and databases.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/commonplace/internal/index"
	"github.com/starford/commonplace/internal/models"
	"github.com/starford/commonplace/internal/schema"
	"github.com/starford/commonplace/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "commonplace-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault directory with a storage.Provider.
func TestVault(t *testing.T) (string, storage.Provider) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// TestRegistry creates a registry with the given modules registered.
func TestRegistry(t *testing.T, mods ...models.Module) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	for _, mod := range mods {
		if err := reg.Register(mod); err != nil {
			t.Fatalf("register module %s: %v", mod.Name, err)
		}
	}
	return reg
}

// TasksModule is a ready-made schema used across packages: an enum status,
// a date due_date, and an integer priority, with a "today" view.
func TasksModule() models.Module {
	return models.Module{
		Name: "tasks",
		Type: "task",
		Properties: []models.PropertyDef{
			{Name: "status", Type: models.TypeEnum, Values: []string{"todo", "in-progress", "done"}},
			{Name: "due_date", Type: models.TypeDate},
			{Name: "priority", Type: models.TypeInteger},
		},
		Views: []models.View{
			{
				Name: "today",
				Filter: []models.Condition{
					{Property: "status", Op: models.OpNe, Value: "done"},
					{Property: "due_date", Op: models.OpLe, Value: "$today"},
				},
				Sort: []models.SortKey{{Property: "due_date"}},
			},
		},
	}
}
