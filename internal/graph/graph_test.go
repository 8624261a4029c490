package graph

import (
	"reflect"
	"strings"
	"testing"

	"github.com/me/tempo/pkg/model"
)

func task(id string, parents ...string) *model.Task {
	t := &model.Task{ID: id, Valid: true}
	for _, p := range parents {
		t.DependsOn = append(t.DependsOn, model.Dependency{Parent: p, Condition: model.ConditionSuccess})
	}
	return t
}

func orderIndex(order []string) map[string]int {
	m := make(map[string]int, len(order))
	for i, id := range order {
		m[id] = i
	}
	return m
}

func TestBuildTopologicalOrder(t *testing.T) {
	g, errs := Build([]*model.Task{
		task("c", "a", "b"),
		task("a"),
		task("b", "a"),
		task("d"),
	})

	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if g.Len() != 4 {
		t.Fatalf("len = %d, want 4", g.Len())
	}

	pos := orderIndex(g.Order())
	if pos["a"] > pos["b"] || pos["b"] > pos["c"] || pos["a"] > pos["c"] {
		t.Errorf("order violates dependencies: %v", g.Order())
	}
}

func TestBuildDeterministic(t *testing.T) {
	tasks := []*model.Task{task("z"), task("m"), task("a")}

	first, _ := Build(tasks)
	for i := 0; i < 5; i++ {
		again, _ := Build(tasks)
		if !reflect.DeepEqual(first.Order(), again.Order()) {
			t.Fatalf("order not deterministic: %v vs %v", first.Order(), again.Order())
		}
	}
	if !reflect.DeepEqual(first.Order(), []string{"a", "m", "z"}) {
		t.Errorf("independent tasks not id-sorted: %v", first.Order())
	}
}

func TestBuildDuplicateID(t *testing.T) {
	g, errs := Build([]*model.Task{task("a"), task("a")})

	if g.Len() != 1 {
		t.Errorf("len = %d, want 1", g.Len())
	}
	if len(errs) != 1 || !strings.Contains(errs[0].Detail, "duplicate") {
		t.Errorf("errors = %v, want one duplicate error", errs)
	}
}

func TestBuildSelfDependency(t *testing.T) {
	g, errs := Build([]*model.Task{task("loner", "loner")})

	if g.Len() != 0 {
		t.Errorf("self-dependent task must be excluded")
	}
	if len(errs) != 1 || !strings.Contains(errs[0].Detail, "itself") {
		t.Errorf("errors = %v", errs)
	}
}

func TestBuildDanglingParentExcludesChildOnly(t *testing.T) {
	g, errs := Build([]*model.Task{
		task("orphan", "ghost"),
		task("grandchild", "orphan"),
		task("fine"),
	})

	if g.Task("orphan") != nil {
		t.Error("task with dangling parent must be excluded")
	}
	// The grandchild stays: its declared parent exists in the snapshot, it
	// just never fires.
	if g.Task("grandchild") == nil {
		t.Error("dependent of the offender must stay schedulable")
	}
	if g.Task("fine") == nil {
		t.Error("unrelated task must stay schedulable")
	}
	if len(errs) != 1 || errs[0].TaskID != "orphan" {
		t.Errorf("errors = %v, want one error on orphan", errs)
	}
}

func TestBuildCycleExcludesMembers(t *testing.T) {
	g, errs := Build([]*model.Task{
		task("x", "y"),
		task("y", "x"),
		task("solo"),
	})

	if g.Len() != 1 || g.Task("solo") == nil {
		t.Errorf("only solo should survive, got %v", g.Order())
	}
	if len(errs) != 2 {
		t.Fatalf("got %d errors, want one per cycle member", len(errs))
	}
	for _, e := range errs {
		if !strings.Contains(e.Detail, "cycle") {
			t.Errorf("error %v should name the cycle", e)
		}
	}
}

func TestChildrenIndex(t *testing.T) {
	g, _ := Build([]*model.Task{
		task("root"),
		task("left", "root"),
		task("right", "root"),
		task("leaf", "left"),
	})

	if got := g.Children("root"); !reflect.DeepEqual(got, []string{"left", "right"}) {
		t.Errorf("children(root) = %v", got)
	}
	if got := g.Children("leaf"); len(got) != 0 {
		t.Errorf("children(leaf) = %v, want none", got)
	}
}
