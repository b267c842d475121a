package content

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/contentstore/internal/models"
)

func TestResolveFile_FrontmatterAndBody(t *testing.T) {
	env := newTestEnv(t, map[string]string{
		"posts/hello-world.md": "---\ntitle: Hello\ntags:\n  - go\n---\n# Hello\nBody text.\n",
	})

	m := env.store.ResolveFile(context.Background(), "posts/hello-world.md", FileOptions{})
	if m == nil {
		t.Fatal("expected module")
	}
	want := map[string]any{"title": "Hello", "tags": []any{"go"}}
	if diff := cmp.Diff(want, m.Data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
	if m.BodyText() != "# Hello\nBody text.\n" {
		t.Errorf("body = %q", m.BodyText())
	}
	if m.Slug != "hello-world" || m.Ext != "md" || m.Dir != "posts" {
		t.Errorf("file info = %+v", m.FileInfo)
	}
}

func TestResolveFile_NoFrontmatter(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.md": "# Just a heading\n"})
	m := env.store.ResolveFile(context.Background(), "a.md", FileOptions{})
	if m == nil {
		t.Fatal("expected module")
	}
	if m.Data != nil {
		t.Errorf("data = %v, want nil", m.Data)
	}
	if m.BodyText() != "# Just a heading\n" {
		t.Errorf("body = %q", m.BodyText())
	}
}

func TestResolveFile_DataOnly(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.yaml.md": "---\ntitle: Only data\n---\n\n  \n"})
	m := env.store.ResolveFile(context.Background(), "a.yaml.md", FileOptions{})
	if m == nil {
		t.Fatal("expected module")
	}
	if m.Body != nil {
		t.Errorf("body = %q, want nil", *m.Body)
	}
	if m.Data["title"] != "Only data" {
		t.Errorf("data = %v", m.Data)
	}
}

func TestResolveFile_CacheHitSkipsRead(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.md": "---\ntitle: A\n---\nbody"})
	ctx := context.Background()

	first := env.store.ResolveFile(ctx, "a.md", FileOptions{})
	second := env.store.ResolveFile(ctx, "a.md", FileOptions{})

	if first == nil || first != second {
		t.Fatalf("expected identical cached module, got %p and %p", first, second)
	}
	if n := env.fs.reads("a.md"); n != 1 {
		t.Errorf("reads = %d, want 1", n)
	}
}

func TestResolveFile_SkipCacheRereads(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.md": "body"})
	ctx := context.Background()

	env.store.ResolveFile(ctx, "a.md", FileOptions{})
	env.store.ResolveFile(ctx, "a.md", FileOptions{SkipCache: true})

	if n := env.fs.reads("a.md"); n != 2 {
		t.Errorf("reads = %d, want 2", n)
	}
}

func TestResolveFile_MissingFile(t *testing.T) {
	env := newTestEnv(t, nil)
	if m := env.store.ResolveFile(context.Background(), "nope.md", FileOptions{}); m != nil {
		t.Errorf("expected nil module, got %+v", m)
	}
	if env.store.Files.Len() != 0 {
		t.Error("missing file should not be cached")
	}
}

func TestResolveFile_InvalidYAMLKeepsBody(t *testing.T) {
	env := newTestEnv(t, map[string]string{"bad.md": "---\ntitle: [unclosed\n---\nStill here\n"})
	m := env.store.ResolveFile(context.Background(), "bad.md", FileOptions{})
	if m == nil {
		t.Fatal("expected module with body")
	}
	if m.Data != nil {
		t.Errorf("data = %v, want nil", m.Data)
	}
	if m.BodyText() != "Still here\n" {
		t.Errorf("body = %q", m.BodyText())
	}
}

func TestResolveFile_NonMappingFrontmatter(t *testing.T) {
	env := newTestEnv(t, map[string]string{"list.md": "---\n- a\n- b\n---\nbody"})
	m := env.store.ResolveFile(context.Background(), "list.md", FileOptions{})
	if m == nil || m.Data != nil {
		t.Fatalf("expected module without data, got %+v", m)
	}
}

func TestResolveFile_EmptyContentElided(t *testing.T) {
	env := newTestEnv(t, map[string]string{
		"empty.md":    "---\n---\n   \n",
		"blank.md":    "\n\t\n",
		"emptymap.md": "---\n{}\n---\n",
	})
	for _, p := range []string{"empty.md", "blank.md", "emptymap.md"} {
		if m := env.store.ResolveFile(context.Background(), p, FileOptions{}); m != nil {
			t.Errorf("%s: expected nil module, got %+v", p, m)
		}
	}
	if env.store.Files.Len() != 0 {
		t.Errorf("cache len = %d, want 0", env.store.Files.Len())
	}
}

func TestResolveFile_ValidatorInput(t *testing.T) {
	env := newTestEnv(t, map[string]string{"blog/2024/post.md": "---\ntitle: hello\n---\nbody"})

	var got ValidatorInput
	v := ValidatorFunc("capture", func(_ context.Context, in ValidatorInput) (map[string]any, error) {
		got = in
		return map[string]any{"title": strings.ToUpper(in.Data["title"].(string))}, nil
	})

	m := env.store.ResolveFile(context.Background(), "blog/2024/post.md", FileOptions{
		Validator:   v,
		MatcherName: "blog",
		MatcherGlob: "blog/**/*.md",
	})
	if m == nil {
		t.Fatal("expected module")
	}
	if m.Data["title"] != "HELLO" {
		t.Errorf("title = %v", m.Data["title"])
	}
	if diff := cmp.Diff([]string{"blog", "2024", "post.md"}, got.PathParts); diff != "" {
		t.Errorf("path parts mismatch (-want +got):\n%s", diff)
	}
	if got.Path != "blog/2024/post.md" || got.MatcherName != "blog" || got.MatcherGlob != "blog/**/*.md" {
		t.Errorf("validator input = %+v", got)
	}
}

func TestResolveFile_ValidatorMutationDoesNotLeak(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.md": "---\ntitle: T\nnested:\n  k: v\n---\nbody"})
	ctx := context.Background()

	mutate := ValidatorFunc("mutate", func(_ context.Context, in ValidatorInput) (map[string]any, error) {
		in.Data["nested"].(map[string]any)["k"] = "changed"
		return in.Data, nil
	})
	env.store.ResolveFile(ctx, "a.md", FileOptions{Validator: mutate})

	plain := env.store.ResolveFile(ctx, "a.md", FileOptions{})
	if plain.Data["nested"].(map[string]any)["k"] != "v" {
		t.Errorf("validator mutation leaked into another resolution: %v", plain.Data)
	}
}

func TestResolveFile_ValidatorFailuresDegrade(t *testing.T) {
	tests := []struct {
		name string
		v    Validator
	}{
		{"error", ValidatorFunc("err", func(context.Context, ValidatorInput) (map[string]any, error) {
			return nil, errors.New("missing date")
		})},
		{"empty", ValidatorFunc("empty", func(context.Context, ValidatorInput) (map[string]any, error) {
			return map[string]any{}, nil
		})},
		{"nil", ValidatorFunc("nil", func(context.Context, ValidatorInput) (map[string]any, error) {
			return nil, nil
		})},
		{"panic", ValidatorFunc("panic", func(context.Context, ValidatorInput) (map[string]any, error) {
			panic("boom")
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, map[string]string{"a.md": "---\ntitle: T\n---\nbody"})
			m := env.store.ResolveFile(context.Background(), "a.md", FileOptions{Validator: tt.v})
			if m == nil {
				t.Fatal("expected module with body")
			}
			if m.Data != nil {
				t.Errorf("data = %v, want nil", m.Data)
			}
			if m.BodyText() != "body" {
				t.Errorf("body = %q", m.BodyText())
			}
		})
	}
}

func TestResolveFile_ValidatorNotCalledWithoutData(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.md": "body only"})
	called := false
	v := ValidatorFunc("spy", func(_ context.Context, in ValidatorInput) (map[string]any, error) {
		called = true
		return in.Data, nil
	})
	env.store.ResolveFile(context.Background(), "a.md", FileOptions{Validator: v})
	if called {
		t.Error("validator should not run without frontmatter")
	}
}

func TestResolveFile_TransformersInOrder(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.md": "---\ntitle: T\n---\nbody"})
	upper := TransformerFunc("upper", strings.ToUpper)
	suffix := TransformerFunc("suffix", func(b string) string { return b + "!" })

	m := env.store.ResolveFile(context.Background(), "a.md", FileOptions{
		Transformers: []Transformer{suffix, upper},
	})
	if m.BodyText() != "BODY!" {
		t.Errorf("body = %q, want %q", m.BodyText(), "BODY!")
	}
}

func TestResolveFile_TransformersSkippedForBlankBody(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.md": "---\ntitle: T\n---\n  \n"})
	called := false
	tr := TransformerFunc("spy", func(b string) string {
		called = true
		return "filled"
	})
	m := env.store.ResolveFile(context.Background(), "a.md", FileOptions{Transformers: []Transformer{tr}})
	if called {
		t.Error("transformer ran on blank body")
	}
	if m == nil || m.Body != nil {
		t.Errorf("expected data-only module, got %+v", m)
	}
}

func TestResolveFile_KeyUsesIDsNotIdentity(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.md": "---\ntitle: T\n---\nbody"})
	ctx := context.Background()
	pass := func(_ context.Context, in ValidatorInput) (map[string]any, error) { return in.Data, nil }

	first := env.store.ResolveFile(ctx, "a.md", FileOptions{Validator: ValidatorFunc("pass", pass)})
	again := env.store.ResolveFile(ctx, "a.md", FileOptions{Validator: ValidatorFunc("pass", pass)})
	if first != again {
		t.Error("validators with the same ID should share a cache entry")
	}
	if n := env.fs.reads("a.md"); n != 1 {
		t.Errorf("reads = %d, want 1", n)
	}

	env.store.ResolveFile(ctx, "a.md", FileOptions{Validator: ValidatorFunc("pass-v2", pass)})
	if n := env.fs.reads("a.md"); n != 2 {
		t.Errorf("reads = %d after different validator, want 2", n)
	}
	if FileKey("a.md", FileOptions{}) == FileKey("a.md", FileOptions{Transformers: []Transformer{TransformerFunc("x", strings.TrimSpace)}}) {
		t.Error("transformers should change the key")
	}
}

func TestInvalidation_Precision(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.md": "A", "b.md": "B"})
	ctx := context.Background()

	env.store.ResolveFile(ctx, "a.md", FileOptions{})
	env.store.ResolveFile(ctx, "b.md", FileOptions{})

	env.hub.Notify("a.md")

	env.store.ResolveFile(ctx, "a.md", FileOptions{})
	env.store.ResolveFile(ctx, "b.md", FileOptions{})

	if n := env.fs.reads("a.md"); n != 2 {
		t.Errorf("a.md reads = %d, want 2", n)
	}
	if n := env.fs.reads("b.md"); n != 1 {
		t.Errorf("b.md reads = %d, want 1", n)
	}
}

func TestInvalidation_AllVariantsOfPath(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.md": "---\ntitle: T\n---\nA"})
	ctx := context.Background()
	pass := ValidatorFunc("pass", func(_ context.Context, in ValidatorInput) (map[string]any, error) { return in.Data, nil })

	env.store.ResolveFile(ctx, "a.md", FileOptions{})
	env.store.ResolveFile(ctx, "a.md", FileOptions{Validator: pass})
	if env.store.Files.Len() != 2 {
		t.Fatalf("cache len = %d, want 2", env.store.Files.Len())
	}

	if removed := env.store.Files.Invalidate("a.md"); removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
}

func TestInvalidation_ReflectsNewContent(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.md": "old"})
	ctx := context.Background()

	env.store.ResolveFile(ctx, "a.md", FileOptions{})
	env.fs.write(t, "a.md", "new")

	if m := env.store.ResolveFile(ctx, "a.md", FileOptions{}); m.BodyText() != "old" {
		t.Errorf("before notify body = %q, want cached %q", m.BodyText(), "old")
	}
	env.hub.Notify("a.md")
	if m := env.store.ResolveFile(ctx, "a.md", FileOptions{}); m.BodyText() != "new" {
		t.Errorf("after notify body = %q, want %q", m.BodyText(), "new")
	}
}

func TestInvalidation_DuringResolveIsNotCached(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.md": "---\ntitle: T\n---\nbody"})
	ctx := context.Background()

	racing := ValidatorFunc("racing", func(_ context.Context, in ValidatorInput) (map[string]any, error) {
		env.hub.Notify(in.Path)
		return in.Data, nil
	})
	if m := env.store.ResolveFile(ctx, "a.md", FileOptions{Validator: racing}); m == nil {
		t.Fatal("expected module")
	}
	if env.store.Files.Len() != 0 {
		t.Errorf("cache len = %d, want 0 after in-flight invalidation", env.store.Files.Len())
	}
}

func TestResolveFile_CancelledContext(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.md": "body"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if m := env.store.ResolveFile(ctx, "a.md", FileOptions{}); m != nil {
		t.Errorf("expected nil module for cancelled context, got %+v", m)
	}
	if n := env.fs.reads("a.md"); n != 0 {
		t.Errorf("reads = %d, want 0", n)
	}
}

func TestResolveFile_CancelledDuringValidationNotCached(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.md": "---\ntitle: A\n---\nbody"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	aware := ValidatorFunc("ctx-aware", func(ctx context.Context, in ValidatorInput) (map[string]any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return in.Data, nil
	})
	cancelling := ValidatorFunc("ctx-aware", func(_ context.Context, in ValidatorInput) (map[string]any, error) {
		cancel()
		return nil, ctx.Err()
	})

	if m := env.store.ResolveFile(ctx, "a.md", FileOptions{Validator: cancelling}); m != nil {
		t.Errorf("cancelled resolve = %+v, want nil", m)
	}
	if n := env.store.Files.Len(); n != 0 {
		t.Fatalf("cache len = %d, want 0 after cancelled resolve", n)
	}

	m := env.store.ResolveFile(context.Background(), "a.md", FileOptions{Validator: aware})
	if m == nil || m.Data["title"] != "A" {
		t.Fatalf("live resolve = %+v, want title A", m)
	}
	if n := env.fs.reads("a.md"); n != 2 {
		t.Errorf("reads = %d, want 2", n)
	}
}

func TestResolveFile_SharedFlightWithCancelledLeader(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.md": "---\ntitle: A\n---\nbody"})
	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	defer cancelLeader()

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	v := ValidatorFunc("blocking", func(ctx context.Context, in ValidatorInput) (map[string]any, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
			cancelLeader()
			return nil, ctx.Err()
		}
		return in.Data, nil
	})

	leader := make(chan *models.Module, 1)
	go func() { leader <- env.store.ResolveFile(leaderCtx, "a.md", FileOptions{Validator: v}) }()
	<-started

	follower := make(chan *models.Module, 1)
	go func() { follower <- env.store.ResolveFile(context.Background(), "a.md", FileOptions{Validator: v}) }()
	time.Sleep(20 * time.Millisecond)
	close(release)

	if m := <-leader; m != nil {
		t.Errorf("leader = %+v, want nil", m)
	}
	m := <-follower
	if m == nil || m.Data["title"] != "A" {
		t.Fatalf("follower = %+v, want title A", m)
	}
	if cached := env.store.ResolveFile(context.Background(), "a.md", FileOptions{Validator: v}); cached != m {
		t.Error("follower result should be the cached module")
	}
}
