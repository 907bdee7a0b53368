// Package models holds a JSON friendly view of finished spans, with the
// parent linkage spelled out as OpenTracing style references.
package models

import (
	"time"

	"github.com/openzipkin/zipkin-go/model"

	zipkintracer "github.com/openzipkin-contrib/zipkin-go-ottrace"
)

// Reference kinds.
const (
	ChildOf     = "child-of"
	FollowsFrom = zipkintracer.RefTypeFollowsFrom
)

type Span struct {
	OperationName string            `json:"operationName" yaml:"operationName"`
	TraceID       string            `json:"traceId" yaml:"traceId"`
	ID            string            `json:"id" yaml:"id"`
	ParentID      string            `json:"parentId,omitempty" yaml:"parentId,omitempty"`
	Kind          string            `json:"kind,omitempty" yaml:"kind,omitempty"`
	Shared        bool              `json:"shared,omitempty" yaml:"shared,omitempty"`
	Sampled       bool              `json:"sampled" yaml:"sampled"`
	Timestamp     time.Time         `json:"timestamp" yaml:"timestamp"`
	Duration      time.Duration     `json:"duration" yaml:"duration"`
	LocalService  string            `json:"localService,omitempty" yaml:"localService,omitempty"`
	Tags          map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Logs          []Log             `json:"logs,omitempty" yaml:"logs,omitempty"`
	References    []Reference       `json:"references" yaml:"references"`
}

type Log struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Message   string    `json:"message" yaml:"message"`
}

type Reference struct {
	Kind    string `json:"kind" yaml:"kind"`
	TraceID string `json:"traceId" yaml:"traceId"`
	SpanID  string `json:"spanId" yaml:"spanId"`
}

// FromSpanModel converts a finished zipkin span. A span with a parent id
// gets exactly one reference, follows-from when the tracer tagged it so and
// child-of otherwise; a root span gets none.
func FromSpanModel(s model.SpanModel) Span {
	span := Span{
		OperationName: s.Name,
		TraceID:       s.TraceID.String(),
		ID:            s.ID.String(),
		Kind:          string(s.Kind),
		Shared:        s.Shared,
		Sampled:       s.Debug || (s.Sampled != nil && *s.Sampled),
		Timestamp:     s.Timestamp,
		Duration:      s.Duration,
		References:    []Reference{},
	}
	if s.LocalEndpoint != nil {
		span.LocalService = s.LocalEndpoint.ServiceName
	}
	if s.ParentID != nil {
		span.ParentID = s.ParentID.String()
		kind := ChildOf
		if s.Tags[zipkintracer.RefTypeTag] == zipkintracer.RefTypeFollowsFrom {
			kind = FollowsFrom
		}
		span.References = append(span.References, Reference{
			Kind:    kind,
			TraceID: span.TraceID,
			SpanID:  span.ParentID,
		})
	}
	if len(s.Tags) > 0 {
		span.Tags = make(map[string]string, len(s.Tags))
		for k, v := range s.Tags {
			if k == zipkintracer.RefTypeTag {
				continue
			}
			span.Tags[k] = v
		}
	}
	for _, a := range s.Annotations {
		span.Logs = append(span.Logs, Log{Timestamp: a.Timestamp, Message: a.Value})
	}
	return span
}

// FromSpanModels converts spans preserving order.
func FromSpanModels(spans []model.SpanModel) []Span {
	out := make([]Span, 0, len(spans))
	for _, s := range spans {
		out = append(out, FromSpanModel(s))
	}
	return out
}

// OperationNames lists operation names in order.
func OperationNames(spans []Span) []string {
	names := make([]string, 0, len(spans))
	for _, s := range spans {
		names = append(names, s.OperationName)
	}
	return names
}

// HasLog reports whether any log message of s equals msg.
func (s Span) HasLog(msg string) bool {
	for _, l := range s.Logs {
		if l.Message == msg {
			return true
		}
	}
	return false
}
