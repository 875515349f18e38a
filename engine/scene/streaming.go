package scene

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/engine/game_object"
	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/google/uuid"
)

type streamOpKind int

const (
	streamAdd streamOpKind = iota
	streamRemove
	streamAddLight
	streamRemoveLight
)

type streamOp struct {
	kind  streamOpKind
	obj   game_object.GameObject
	light light.Light
	id    uuid.UUID
}

// StreamingScene is a Scene whose object and light changes can be queued from
// any goroutine. Queued changes become visible when the render thread calls
// Flush, once per frame, so the graph stays stable while a frame renders.
type StreamingScene struct {
	Scene

	queueMu sync.Mutex
	queue   []streamOp
}

// Flusher is implemented by scene graphs that apply queued changes once per frame.
type Flusher interface {
	// Flush applies the queued changes.
	//
	// Returns:
	//   - int: the number of changes applied
	Flush() int
}

var _ Flusher = &StreamingScene{}

// NewStreamingScene wraps a new Scene with a change queue.
//
// Parameters:
//   - name: the name of the scene
//   - options: functional options for the wrapped scene
//
// Returns:
//   - *StreamingScene: the streaming scene
func NewStreamingScene(name string, options ...SceneBuilderOption) *StreamingScene {
	return &StreamingScene{Scene: NewScene(name, options...)}
}

// QueueAdd queues an object to be added at the next Flush.
func (s *StreamingScene) QueueAdd(obj game_object.GameObject) {
	s.enqueue(streamOp{kind: streamAdd, obj: obj})
}

// QueueRemove queues an object removal for the next Flush.
func (s *StreamingScene) QueueRemove(id uuid.UUID) {
	s.enqueue(streamOp{kind: streamRemove, id: id})
}

// QueueAddLight queues a light to be appended at the next Flush.
func (s *StreamingScene) QueueAddLight(l light.Light) {
	s.enqueue(streamOp{kind: streamAddLight, light: l})
}

// QueueRemoveLight queues a light removal for the next Flush.
func (s *StreamingScene) QueueRemoveLight(id uuid.UUID) {
	s.enqueue(streamOp{kind: streamRemoveLight, id: id})
}

// Pending returns the number of queued changes.
func (s *StreamingScene) Pending() int {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	return len(s.queue)
}

func (s *StreamingScene) enqueue(op streamOp) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	s.queue = append(s.queue, op)
}

func (s *StreamingScene) Flush() int {
	s.queueMu.Lock()
	ops := s.queue
	s.queue = nil
	s.queueMu.Unlock()

	// Applied in queue order so an add followed by a remove nets out.
	for _, op := range ops {
		switch op.kind {
		case streamAdd:
			s.Add(op.obj)
		case streamRemove:
			s.Remove(op.id)
		case streamAddLight:
			s.AddLight(op.light)
		case streamRemoveLight:
			s.RemoveLight(op.id)
		}
	}
	return len(ops)
}
