package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/contentstore/internal/apperr"
	"github.com/starford/contentstore/internal/contentservice"
	"github.com/starford/contentstore/internal/models"
	"github.com/starford/contentstore/internal/testutil"
)

func queryConfig(t *testing.T, withCatalog bool) *Config {
	t.Helper()
	root, _ := testutil.TestContentRoot(t, map[string]string{
		"posts/a.md": "---\ntitle: A\nrank: 2\n---\nalpha",
		"posts/b.md": "---\ntitle: B\nrank: 1\n---\nbeta",
	})
	cfg := NewDefaultConfig()
	cfg.Content.Root = root
	cfg.Content.Collections = map[string]contentservice.QuerySpec{
		"posts": {
			Sources:      map[string]string{"posts": "posts/*.md"},
			ListHandlers: []string{"sort:rank"},
			PageSize:     1,
		},
	}
	cfg.Catalog.Enabled = withCatalog
	cfg.Catalog.Path = filepath.Join(t.TempDir(), "catalog.db")
	return cfg
}

func TestRunQuery(t *testing.T) {
	for _, withCatalog := range []bool{false, true} {
		var out bytes.Buffer
		page := 0
		err := RunQuery(context.Background(), "posts", &page,
			WithConfig(queryConfig(t, withCatalog)),
			WithOutput(&out),
			WithLogOutput(io.Discard))
		if err != nil {
			t.Fatalf("catalog=%v: RunQuery: %v", withCatalog, err)
		}

		var coll models.Collection
		if err := json.Unmarshal(out.Bytes(), &coll); err != nil {
			t.Fatalf("decode %q: %v", out.String(), err)
		}
		if len(coll.Entries) != 1 || coll.Entries[0].Path != "posts/b.md" {
			t.Errorf("catalog=%v: entries = %+v", withCatalog, coll.Entries)
		}
		if coll.TotalEntries != 2 {
			t.Errorf("catalog=%v: totalEntries = %d, want 2", withCatalog, coll.TotalEntries)
		}
	}
}

func TestRunQuery_UnknownCollection(t *testing.T) {
	err := RunQuery(context.Background(), "nope", nil,
		WithConfig(queryConfig(t, false)),
		WithOutput(io.Discard),
		WithLogOutput(io.Discard))
	if !errors.Is(err, apperr.ErrUnknownCollection) {
		t.Errorf("err = %v, want ErrUnknownCollection", err)
	}
}

func TestRun_RequiresConfig(t *testing.T) {
	if err := Run(context.Background(), WithLogOutput(io.Discard)); err == nil {
		t.Error("expected error without config")
	}
}

func TestBootstrap_UnknownComponent(t *testing.T) {
	cfg := queryConfig(t, false)
	cfg.Content.Collections["broken"] = contentservice.QuerySpec{
		Sources:      map[string]string{"posts": "posts/*.md"},
		Transformers: []string{"nope"},
	}
	_, err := bootstrap(newApplication([]Option{WithConfig(cfg), WithLogOutput(io.Discard)}))
	if !errors.Is(err, apperr.ErrUnknownComponent) {
		t.Errorf("err = %v, want ErrUnknownComponent", err)
	}
}

func TestRunQuery_OutputFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "posts.json")
	var stdout bytes.Buffer
	err := RunQuery(context.Background(), "posts", nil,
		WithConfig(queryConfig(t, false)),
		WithOutput(&stdout),
		WithOutputFile(out),
		WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("RunQuery: %v", err)
	}
	if stdout.Len() != 0 {
		t.Errorf("stdout = %q, want empty", stdout.String())
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var coll models.Collection
	if err := json.Unmarshal(data, &coll); err != nil {
		t.Fatal(err)
	}
	if len(coll.Entries) != 1 || coll.Entries[0].Path != "posts/a.md" {
		t.Errorf("entries = %+v, want posts/a.md on the default page", coll.Entries)
	}
}
