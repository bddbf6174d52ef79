package command

import (
	"fmt"

	"github.com/signalsfoundry/flock-simulator/core"
	"github.com/signalsfoundry/flock-simulator/internal/sim/state"
	"github.com/signalsfoundry/flock-simulator/model"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// wire is a flock.v1 message. Field lookups go through the message
// descriptor and a name missing from the schema panics, so a typo fails
// every test that touches it instead of reading as zero.
type wire struct {
	m protoreflect.Message
}

func newWire(md protoreflect.MessageDescriptor) wire {
	return wire{m: dynamicpb.NewMessage(md)}
}

// asWire checks that msg is an instance of md.
func asWire(msg proto.Message, md protoreflect.MessageDescriptor) (wire, error) {
	if msg == nil {
		return wire{}, fmt.Errorf("%w: request is required", ErrInvalidRequest)
	}
	m := msg.ProtoReflect()
	if got := m.Descriptor().FullName(); got != md.FullName() {
		return wire{}, fmt.Errorf("%w: got %s, want %s", ErrInvalidRequest, got, md.FullName())
	}
	return wire{m: m}, nil
}

func (w wire) message() proto.Message { return w.m.Interface() }

func (w wire) field(name protoreflect.Name) protoreflect.FieldDescriptor {
	fd := w.m.Descriptor().Fields().ByName(name)
	if fd == nil {
		panic(fmt.Sprintf("command: %s has no field %s", w.m.Descriptor().FullName(), name))
	}
	return fd
}

func (w wire) has(name protoreflect.Name) bool { return w.m.Has(w.field(name)) }

func (w wire) get(name protoreflect.Name) protoreflect.Value { return w.m.Get(w.field(name)) }

func (w wire) str(name protoreflect.Name) string   { return w.get(name).String() }
func (w wire) num(name protoreflect.Name) float64  { return w.get(name).Float() }
func (w wire) u64(name protoreflect.Name) uint64   { return w.get(name).Uint() }
func (w wire) boolean(name protoreflect.Name) bool { return w.get(name).Bool() }

// child reads a message field. An unset field reads as an empty message.
func (w wire) child(name protoreflect.Name) wire { return wire{m: w.get(name).Message()} }

// mutable returns a message field for writing, allocating it if unset.
func (w wire) mutable(name protoreflect.Name) wire {
	return wire{m: w.m.Mutable(w.field(name)).Message()}
}

func (w wire) setStr(name protoreflect.Name, v string) {
	w.m.Set(w.field(name), protoreflect.ValueOfString(v))
}

func (w wire) setNum(name protoreflect.Name, v float64) {
	w.m.Set(w.field(name), protoreflect.ValueOfFloat64(v))
}

func (w wire) setUint(name protoreflect.Name, v uint64) {
	w.m.Set(w.field(name), protoreflect.ValueOfUint64(v))
}

func (w wire) setBool(name protoreflect.Name, v bool) {
	w.m.Set(w.field(name), protoreflect.ValueOfBool(v))
}

func (w wire) setStrings(name protoreflect.Name, ss []string) {
	if len(ss) == 0 {
		return
	}
	l := w.m.Mutable(w.field(name)).List()
	for _, s := range ss {
		l.Append(protoreflect.ValueOfString(s))
	}
}

func (w wire) strings(name protoreflect.Name) []string {
	l := w.get(name).List()
	if l.Len() == 0 {
		return nil
	}
	out := make([]string, l.Len())
	for i := range out {
		out[i] = l.Get(i).String()
	}
	return out
}

// appendChild adds an element to a repeated message field.
func (w wire) appendChild(name protoreflect.Name) wire {
	l := w.m.Mutable(w.field(name)).List()
	el := l.NewElement()
	l.Append(el)
	return wire{m: el.Message()}
}

func (w wire) children(name protoreflect.Name) []wire {
	l := w.get(name).List()
	out := make([]wire, l.Len())
	for i := range out {
		out[i] = wire{m: l.Get(i).Message()}
	}
	return out
}

func putVec3(w wire, v model.Vec3) {
	w.setNum("x", v.X())
	w.setNum("y", v.Y())
	w.setNum("z", v.Z())
}

func getVec3(w wire) model.Vec3 {
	return model.Vec3{w.num("x"), w.num("y"), w.num("z")}
}

func putVec2(w wire, v model.Vec2) {
	w.setNum("x", v.X())
	w.setNum("z", v.Y())
}

func getVec2(w wire) model.Vec2 {
	return model.Vec2{w.num("x"), w.num("z")}
}

func putAgent(w wire, a state.AgentView) {
	w.setStr("id", a.ID)
	w.setStr("name", a.Name)
	putVec3(w.mutable("position"), a.Position)
	w.setNum("yaw", a.Yaw)
	putVec2(w.mutable("velocity"), a.Velocity)
	w.setStr("state", a.State)
	w.setUint("flock_id", a.FlockID)
	w.setNum("max_speed", a.MaxSpeed)
	w.setNum("selection_radius", a.SelectionRadius)
	w.setBool("stationary", a.Stationary)
}

func getAgent(w wire) state.AgentView {
	return state.AgentView{
		ID:              w.str("id"),
		Name:            w.str("name"),
		Position:        getVec3(w.child("position")),
		Yaw:             w.num("yaw"),
		Velocity:        getVec2(w.child("velocity")),
		State:           w.str("state"),
		FlockID:         w.u64("flock_id"),
		MaxSpeed:        w.num("max_speed"),
		SelectionRadius: w.num("selection_radius"),
		Stationary:      w.boolean("stationary"),
	}
}

func putFlocks(w wire, flocks []state.FlockView) {
	for _, f := range flocks {
		fw := w.appendChild("flocks")
		fw.setUint("id", f.ID)
		putVec2(fw.mutable("target"), f.Target)
		fw.setStrings("members", f.Members)
	}
}

func getFlocks(w wire) []state.FlockView {
	var out []state.FlockView
	for _, fw := range w.children("flocks") {
		out = append(out, state.FlockView{
			ID:      fw.u64("id"),
			Target:  getVec2(fw.child("target")),
			Members: fw.strings("members"),
		})
	}
	return out
}

// EncodeAgent converts an agent view into a flock.v1.AgentState.
func EncodeAgent(a state.AgentView) proto.Message {
	w := newWire(agentStateDesc)
	putAgent(w, a)
	return w.message()
}

// DecodeAgent converts a flock.v1.AgentState back into an agent view.
func DecodeAgent(msg proto.Message) (state.AgentView, error) {
	w, err := asWire(msg, agentStateDesc)
	if err != nil {
		return state.AgentView{}, err
	}
	return getAgent(w), nil
}

// EncodeFlocks converts flock views into a flock.v1.ListFlocksResponse.
func EncodeFlocks(flocks []state.FlockView) proto.Message {
	w := newWire(flockListDesc)
	putFlocks(w, flocks)
	return w.message()
}

// DecodeFlocks converts a flock.v1.ListFlocksResponse back into flock views.
func DecodeFlocks(msg proto.Message) ([]state.FlockView, error) {
	w, err := asWire(msg, flockListDesc)
	if err != nil {
		return nil, err
	}
	return getFlocks(w), nil
}

// EncodeSnapshot converts a snapshot into a flock.v1.Snapshot.
func EncodeSnapshot(s state.Snapshot) proto.Message {
	w := newWire(snapshotDesc)
	w.setUint("tick", s.Tick)
	for _, a := range s.Agents {
		putAgent(w.appendChild("agents"), a)
	}
	putFlocks(w, s.Flocks)
	for _, m := range s.Markers {
		mw := w.appendChild("markers")
		mw.setUint("id", m.ID)
		putVec3(mw.mutable("position"), m.Position)
		mw.setUint("placed_at", m.PlacedAt)
	}
	return w.message()
}

// DecodeSnapshot converts a flock.v1.Snapshot back into a snapshot.
func DecodeSnapshot(msg proto.Message) (state.Snapshot, error) {
	w, err := asWire(msg, snapshotDesc)
	if err != nil {
		return state.Snapshot{}, err
	}
	snap := state.Snapshot{
		Tick:   w.u64("tick"),
		Flocks: getFlocks(w),
	}
	for _, aw := range w.children("agents") {
		snap.Agents = append(snap.Agents, getAgent(aw))
	}
	for _, mw := range w.children("markers") {
		snap.Markers = append(snap.Markers, core.Marker{
			ID:       mw.u64("id"),
			Position: getVec3(mw.child("position")),
			PlacedAt: mw.u64("placed_at"),
		})
	}
	return snap, nil
}

// EncodeCommandResult converts a command result into a flock.v1.CommandResult.
func EncodeCommandResult(r state.CommandResult) proto.Message {
	w := newWire(commandResultDesc)
	w.setStr("command_id", r.ID)
	w.setUint("tick", r.Tick)
	w.setUint("flock_id", r.FlockID)
	w.setStrings("admitted", r.Admitted)
	w.setStrings("skipped", r.Skipped)
	return w.message()
}

// DecodeCommandResult converts a flock.v1.CommandResult back into a command result.
func DecodeCommandResult(msg proto.Message) (state.CommandResult, error) {
	w, err := asWire(msg, commandResultDesc)
	if err != nil {
		return state.CommandResult{}, err
	}
	return state.CommandResult{
		ID:       w.str("command_id"),
		Tick:     w.u64("tick"),
		FlockID:  w.u64("flock_id"),
		Admitted: w.strings("admitted"),
		Skipped:  w.strings("skipped"),
	}, nil
}

// MoveRequest is the decoded form of an IssueMove request.
type MoveRequest struct {
	AgentIDs []string
	Target   model.Vec3
}

// EncodeMoveRequest converts a move request into a flock.v1.IssueMoveRequest.
func EncodeMoveRequest(r MoveRequest) proto.Message {
	w := newWire(moveRequestDesc)
	w.setStrings("agent_ids", r.AgentIDs)
	putVec3(w.mutable("target"), r.Target)
	return w.message()
}

// DecodeMoveRequest validates and decodes an IssueMove request.
func DecodeMoveRequest(msg proto.Message) (MoveRequest, error) {
	w, err := asWire(msg, moveRequestDesc)
	if err != nil {
		return MoveRequest{}, err
	}
	ids := w.strings("agent_ids")
	if len(ids) == 0 {
		return MoveRequest{}, fmt.Errorf("%w: agent_ids is required", ErrInvalidRequest)
	}
	for i, id := range ids {
		if id == "" {
			return MoveRequest{}, fmt.Errorf("%w: agent_ids[%d] must be non-empty", ErrInvalidRequest, i)
		}
	}
	if !w.has("target") {
		return MoveRequest{}, fmt.Errorf("%w: target is required", ErrInvalidRequest)
	}
	req := MoveRequest{AgentIDs: ids, Target: getVec3(w.child("target"))}
	if !model.Finite(req.Target) {
		return MoveRequest{}, fmt.Errorf("%w: target must be finite, got %v", ErrInvalidRequest, req.Target)
	}
	return req, nil
}

// EncodeAgentRequest builds a flock.v1.GetAgentStateRequest.
func EncodeAgentRequest(id string) proto.Message {
	w := newWire(agentRequestDesc)
	w.setStr("agent_id", id)
	return w.message()
}

// DecodeAgentID extracts the agent_id field of a GetAgentState request.
func DecodeAgentID(msg proto.Message) (string, error) {
	w, err := asWire(msg, agentRequestDesc)
	if err != nil {
		return "", err
	}
	id := w.str("agent_id")
	if id == "" {
		return "", fmt.Errorf("%w: agent_id is required", ErrInvalidRequest)
	}
	return id, nil
}
