package nats

import (
	"encoding/json"

	"github.com/smazurov/echotherm/internal/protocol"
)

// Subjects.
const (
	SubjectPrefix       = "echotherm"
	SubjectCommands     = SubjectPrefix + ".commands"
	SubjectStatus       = SubjectPrefix + ".status"
	SubjectEventsPrefix = SubjectPrefix + ".events"
)

// Transport names NATS callers in protocol logs and metrics.
const Transport = "nats"

// SubjectEvent returns the subject an event named name is published on.
func SubjectEvent(name string) string {
	return SubjectEventsPrefix + "." + name
}

// CommandRequest carries one command batch in wire form.
type CommandRequest struct {
	Batch string `json:"batch"`
}

// Marshal serializes the message to JSON.
func (m CommandRequest) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// CommandResult is the outcome of one command in a batch.
type CommandResult struct {
	Command string `json:"command"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CommandReply answers a CommandRequest.
type CommandReply struct {
	Results []CommandResult `json:"results"`
	Error   string          `json:"error,omitempty"`
}

// Marshal serializes the message to JSON.
func (m CommandReply) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Lines returns the result lines a TCP client would have received.
func (m CommandReply) Lines() []string {
	var lines []string
	for _, r := range m.Results {
		if r.Output != "" {
			lines = append(lines, r.Output)
		}
	}
	return lines
}

// NewCommandReply converts executor results.
func NewCommandReply(results []protocol.Result) CommandReply {
	reply := CommandReply{Results: make([]CommandResult, 0, len(results))}
	for _, r := range results {
		cr := CommandResult{Command: r.Command.String()}
		if r.HasOutput {
			cr.Output = r.Output
		}
		if r.Err != nil {
			cr.Error = r.Err.Error()
		}
		reply.Results = append(reply.Results, cr)
	}
	return reply
}

// EventMessage wraps a bus event.
type EventMessage struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

// Marshal serializes the message to JSON.
func (m EventMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalCommandRequest deserializes a CommandRequest. A payload that is
// not a JSON object is taken as the raw batch text.
func UnmarshalCommandRequest(data []byte) (CommandRequest, error) {
	var m CommandRequest
	if len(data) == 0 || data[0] != '{' {
		return CommandRequest{Batch: string(data)}, nil
	}
	err := json.Unmarshal(data, &m)
	return m, err
}

// UnmarshalCommandReply deserializes a CommandReply.
func UnmarshalCommandReply(data []byte) (CommandReply, error) {
	var m CommandReply
	err := json.Unmarshal(data, &m)
	return m, err
}

// UnmarshalEvent deserializes an EventMessage; Data is left as raw JSON.
func UnmarshalEvent(data []byte) (EventMessage, json.RawMessage, error) {
	var m struct {
		EventMessage
		Data json.RawMessage `json:"data"`
	}
	err := json.Unmarshal(data, &m)
	return m.EventMessage, m.Data, err
}
