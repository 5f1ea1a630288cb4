package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperjump/archivist/internal/models"
)

func sampleVideos() []models.VideoInfo {
	return []models.VideoInfo{
		{VideoName: "big_buck_bunny", Status: models.StatusCompleted},
		{VideoName: "sintel_trailer", Status: models.StatusCompleted},
		{VideoName: "tears_of_steel", Status: models.StatusFailed},
		{VideoName: "elephants_dream", Status: models.StatusDetectingObjects},
	}
}

func newCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	if err := c.Load(sampleVideos()); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNames(t *testing.T) {
	c := newCatalog(t)
	if c.Len() != 4 {
		t.Errorf("len = %d", c.Len())
	}
	got := c.Names(models.StatusCompleted)
	if len(got) != 2 || got[0] != "big_buck_bunny" || got[1] != "sintel_trailer" {
		t.Errorf("completed = %v", got)
	}
	if all := c.Names(""); len(all) != 4 {
		t.Errorf("all = %v", all)
	}
}

func TestResolve_exact(t *testing.T) {
	c := newCatalog(t)
	r := c.Resolve("Big Buck Bunny")
	if !r.Resolved() || r.Name != "big_buck_bunny" {
		t.Errorf("resolution = %+v", r)
	}
}

func TestResolve_suggestsTypos(t *testing.T) {
	c := newCatalog(t)
	r := c.Resolve("sintel_trialer")
	if r.Resolved() {
		t.Fatal("typo should not resolve")
	}
	if len(r.Suggestions) == 0 || r.Suggestions[0].Name != "sintel_trailer" {
		t.Fatalf("suggestions = %+v", r.Suggestions)
	}
	if r.Suggestions[0].Distance != 1 {
		t.Errorf("distance = %d, want 1 (transposition)", r.Suggestions[0].Distance)
	}
}

func TestResolve_prefix(t *testing.T) {
	c := newCatalog(t)
	r := c.Resolve("elephants")
	if r.Resolved() {
		t.Fatal("prefix should not resolve exactly")
	}
	if len(r.Suggestions) == 0 || r.Suggestions[0].Name != "elephants_dream" {
		t.Errorf("suggestions = %+v", r.Suggestions)
	}
}

func TestResolve_noMatch(t *testing.T) {
	c := newCatalog(t)
	r := c.Resolve("zzzzzzzzzzzz")
	if r.Resolved() || len(r.Suggestions) != 0 {
		t.Errorf("resolution = %+v", r)
	}
	if r := c.Resolve("  "); r.Resolved() {
		t.Error("blank input should not resolve")
	}
}

func TestResolveAll(t *testing.T) {
	c := newCatalog(t)
	names, misses := c.ResolveAll([]string{"sintel trailer", "Sintel_Trailer", "nope_nope_nope_nope"})
	if len(names) != 1 || names[0] != "sintel_trailer" {
		t.Errorf("names = %v", names)
	}
	if len(misses) != 1 || misses[0].Input != "nope_nope_nope_nope" {
		t.Errorf("misses = %+v", misses)
	}
}

type fakeLister struct {
	videos []models.VideoInfo
	err    error
}

func (f fakeLister) ListVideos(context.Context) ([]models.VideoInfo, error) {
	return f.videos, f.err
}

func TestRefresh(t *testing.T) {
	c := newCatalog(t)
	err := c.Refresh(context.Background(), fakeLister{videos: []models.VideoInfo{{VideoName: "new_clip", Status: models.StatusCompleted}}})
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 1 {
		t.Errorf("refresh should replace the catalog, len = %d", c.Len())
	}
	if s, ok := c.Status("new_clip"); !ok || s != models.StatusCompleted {
		t.Errorf("status = %s %v", s, ok)
	}

	if err := c.Refresh(context.Background(), fakeLister{err: errors.New("down")}); err == nil {
		t.Error("expected refresh error")
	}
	if c.Len() != 1 {
		t.Error("failed refresh should keep the previous catalog")
	}
}
