// Package framegraph is an in-memory spatial/attribute graph: named frames,
// directed labeled transforms between them, and typed items attached to a
// frame. It mirrors the estimation graph for spatial queries and carries the
// per-frame sensor products.
package framegraph

import (
	"fmt"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/jhidalgocarrio/esam/features"
	"github.com/jhidalgocarrio/esam/pointcloud"
	"github.com/jhidalgocarrio/esam/spatialmath"
)

// UnknownFrameError reports access to a frame the graph does not hold.
type UnknownFrameError struct {
	Frame string
}

func (e *UnknownFrameError) Error() string {
	return fmt.Sprintf("unknown frame %q", e.Frame)
}

// IsUnknownFrame reports whether err is an UnknownFrameError.
func IsUnknownFrame(err error) bool {
	var ufe *UnknownFrameError
	return errors.As(err, &ufe)
}

// TransformEdge is a directed, timestamped transform between two frames with
// its covariance. Edges mirror relative estimation factors one to one.
type TransformEdge struct {
	Source    string
	Target    string
	Time      time.Time
	Transform spatialmath.Pose
	Cov       *mat.SymDense
}

// frame holds the typed items attachable to a single frame.
type frame struct {
	pose        *spatialmath.PoseWithCovariance
	landmark    *r3.Vector
	cloud       *pointcloud.PointCloud
	keypoints   []features.Keypoint
	descriptors []features.Descriptor
	bound       *spatialmath.AlignedBox
}

// Graph is the spatial/attribute store. It is not safe for concurrent use;
// the owning graph manager serializes access.
type Graph struct {
	frames map[string]*frame
	edges  []TransformEdge
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{frames: make(map[string]*frame)}
}

// AddFrame creates a frame. Creating a frame that already exists is an
// error.
func (g *Graph) AddFrame(name string) error {
	if _, ok := g.frames[name]; ok {
		return errors.Errorf("frame %q already exists", name)
	}
	g.frames[name] = &frame{}
	return nil
}

// HasFrame reports whether the frame exists.
func (g *Graph) HasFrame(name string) bool {
	_, ok := g.frames[name]
	return ok
}

// FrameCount returns the number of frames.
func (g *Graph) FrameCount() int {
	return len(g.frames)
}

// AddTransform adds a directed transform edge, creating either endpoint
// frame if it does not exist yet.
func (g *Graph) AddTransform(edge TransformEdge) {
	if _, ok := g.frames[edge.Source]; !ok {
		g.frames[edge.Source] = &frame{}
	}
	if _, ok := g.frames[edge.Target]; !ok {
		g.frames[edge.Target] = &frame{}
	}
	g.edges = append(g.edges, edge)
}

// Transform returns the most recent transform edge between a frame pair.
func (g *Graph) Transform(source, target string) (TransformEdge, error) {
	if _, ok := g.frames[source]; !ok {
		return TransformEdge{}, &UnknownFrameError{Frame: source}
	}
	if _, ok := g.frames[target]; !ok {
		return TransformEdge{}, &UnknownFrameError{Frame: target}
	}
	for i := len(g.edges) - 1; i >= 0; i-- {
		if g.edges[i].Source == source && g.edges[i].Target == target {
			return g.edges[i], nil
		}
	}
	return TransformEdge{}, errors.Errorf("no transform from %q to %q", source, target)
}

// Transforms returns all transform edges in insertion order.
func (g *Graph) Transforms() []TransformEdge {
	return g.edges
}

// TransformCount returns the number of transform edges.
func (g *Graph) TransformCount() int {
	return len(g.edges)
}

func (g *Graph) frameFor(name string) (*frame, error) {
	f, ok := g.frames[name]
	if !ok {
		return nil, &UnknownFrameError{Frame: name}
	}
	return f, nil
}
