package evalgrpc

import (
	"encoding/json"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"pkt.systems/jrepl/core"
	"pkt.systems/jrepl/schema"
)

// request is the Call payload.
type request struct {
	Op             string                 `json:"op"`
	Name           string                 `json:"name,omitempty"`
	Source         string                 `json:"source,omitempty"`
	EnclosingClass string                 `json:"enclosing_class,omitempty"`
	Entry          *schema.ClasspathEntry `json:"entry,omitempty"`
	Enabled        bool                   `json:"enabled,omitempty"`
	WorkingDir     string                 `json:"working_dir,omitempty"`
	DebugPort      int                    `json:"debug_port,omitempty"`
}

func (r request) resetRequest() core.ResetRequest {
	return core.ResetRequest{WorkingDir: r.WorkingDir, DebugPort: r.DebugPort}
}

// reply is the Call result.
type reply struct {
	Value      string   `json:"value,omitempty"`
	Values     []string `json:"values,omitempty"`
	InProgress bool     `json:"in_progress,omitempty"`
}

// streamMessage is one Callbacks message.
type streamMessage struct {
	Type     string           `json:"type"`
	Callback *schema.Callback `json:"callback,omitempty"`
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

func fromStruct(in *structpb.Struct, v any) error {
	if in == nil {
		in = &structpb.Struct{}
	}
	data, err := protojson.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
