package kb

import (
	"errors"
	"sync"
	"testing"

	"github.com/signalsfoundry/flock-simulator/model"
)

func TestAddAndGetAgent(t *testing.T) {
	store := NewKnowledgeBase()
	a := &model.Agent{ID: "a1", Name: "Scout", MaxSpeed: 30}
	if err := store.AddAgent(a); err != nil {
		t.Fatalf("AddAgent error: %v", err)
	}

	got := store.GetAgent("a1")
	if got == nil {
		t.Fatalf("GetAgent returned nil")
	}
	if got.Name != "Scout" {
		t.Fatalf("got agent name %q, want %q", got.Name, "Scout")
	}
	if got.Rotation != model.IdentityQuat {
		t.Fatalf("rotation = %+v, want identity", got.Rotation)
	}
}

func TestAddAgentDuplicate(t *testing.T) {
	store := NewKnowledgeBase()
	if err := store.AddAgent(&model.Agent{ID: "a1"}); err != nil {
		t.Fatalf("first AddAgent error: %v", err)
	}
	err := store.AddAgent(&model.Agent{ID: "a1"})
	if !errors.Is(err, ErrAgentExists) {
		t.Fatalf("AddAgent duplicate error = %v, want ErrAgentExists", err)
	}
}

func TestAddAgentRequiresID(t *testing.T) {
	store := NewKnowledgeBase()
	if err := store.AddAgent(&model.Agent{}); err == nil {
		t.Fatalf("expected error for empty ID")
	}
	if err := store.AddAgent(nil); err == nil {
		t.Fatalf("expected error for nil agent")
	}
}

func TestSelectKeepsOrderAndSkipsUnknown(t *testing.T) {
	store := NewKnowledgeBase()
	for _, id := range []string{"a", "b", "c"} {
		if err := store.AddAgent(&model.Agent{ID: id}); err != nil {
			t.Fatalf("AddAgent(%s): %v", id, err)
		}
	}

	sel := store.Select("c", "missing", "a", "c")
	if len(sel) != 2 {
		t.Fatalf("Select len=%d, want 2", len(sel))
	}
	if sel[0].ID != "c" || sel[1].ID != "a" {
		t.Fatalf("Select order = [%s %s], want [c a]", sel[0].ID, sel[1].ID)
	}
}

func TestListAgentsInsertionOrderAfterRemove(t *testing.T) {
	store := NewKnowledgeBase()
	for _, id := range []string{"a", "b", "c"} {
		if err := store.AddAgent(&model.Agent{ID: id}); err != nil {
			t.Fatalf("AddAgent(%s): %v", id, err)
		}
	}
	if err := store.RemoveAgent("b"); err != nil {
		t.Fatalf("RemoveAgent: %v", err)
	}
	if err := store.RemoveAgent("b"); !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("second RemoveAgent error = %v, want ErrAgentNotFound", err)
	}

	list := store.ListAgents()
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "c" {
		t.Fatalf("ListAgents = %v, want [a c]", ids(list))
	}
	if store.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", store.Len())
	}
}

func TestUpdateAgentPoseAndSubscribe(t *testing.T) {
	store := NewKnowledgeBase()
	if err := store.AddAgent(&model.Agent{ID: "a1"}); err != nil {
		t.Fatalf("AddAgent error: %v", err)
	}

	var got Event
	store.Subscribe(func(e Event) { got = e })

	pos := model.Vec3{1, 2, 3}
	if err := store.UpdateAgentPose("a1", pos, model.YawQuat(1)); err != nil {
		t.Fatalf("UpdateAgentPose error: %v", err)
	}

	if got.Type != EventAgentUpdated {
		t.Fatalf("got event type %v, want EventAgentUpdated", got.Type)
	}
	if got.Agent.Position != pos {
		t.Fatalf("event agent position = %#v, want %#v", got.Agent.Position, pos)
	}
	if err := store.UpdateAgentPose("nope", pos, model.IdentityQuat); !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("UpdateAgentPose unknown error = %v, want ErrAgentNotFound", err)
	}
}

func TestEmitMotionEvents(t *testing.T) {
	store := NewKnowledgeBase()
	if err := store.AddAgent(&model.Agent{ID: "a1", Name: "Tank"}); err != nil {
		t.Fatalf("AddAgent error: %v", err)
	}

	var events []Event
	unsubscribe := store.Subscribe(func(e Event) { events = append(events, e) })

	store.Emit(model.MotionStart, "a1")
	store.Emit(model.MotionEnd, "ghost")

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != EventMotionStart || events[0].Agent.Name != "Tank" {
		t.Fatalf("first event = %+v, want motion start for Tank", events[0])
	}
	if events[1].Type != EventMotionEnd || events[1].AgentID != "ghost" {
		t.Fatalf("second event = %+v, want motion end for ghost", events[1])
	}

	unsubscribe()
	store.Emit(model.MotionStart, "a1")
	if len(events) != 2 {
		t.Fatalf("got %d events after unsubscribe, want 2", len(events))
	}
}

func TestUnsubscribeKeepsOtherSubscribers(t *testing.T) {
	store := NewKnowledgeBase()
	var first, second int
	unsubFirst := store.Subscribe(func(Event) { first++ })
	store.Subscribe(func(Event) { second++ })

	unsubFirst()
	unsubFirst()
	store.Emit(model.MotionStart, "x")

	if first != 0 || second != 1 {
		t.Fatalf("first=%d second=%d, want 0 and 1", first, second)
	}
}

func TestConcurrentAccess(t *testing.T) {
	store := NewKnowledgeBase()
	if err := store.AddAgent(&model.Agent{ID: "a1"}); err != nil {
		t.Fatalf("AddAgent error: %v", err)
	}

	var wg sync.WaitGroup
	// Concurrent readers/writers
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = store.GetAgent("a1")
			_ = store.ListAgents()
		}()
		go func() {
			defer wg.Done()
			_ = store.UpdateAgentPose("a1", model.Vec3{float64(i), 0, 0}, model.IdentityQuat)
		}()
	}
	wg.Wait()
}

func ids(agents []*model.Agent) []string {
	out := make([]string, 0, len(agents))
	for _, a := range agents {
		out = append(out, a.ID)
	}
	return out
}
