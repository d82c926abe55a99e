package feed

import (
	"encoding/json"

	"github.com/danielpatrickdp/liveweb-controlplane/internal/preset"
)

// MessageType tags every frame on the feed socket.
type MessageType string

const (
	// renderer -> control plane
	TypeAudio    MessageType = "audio"
	TypeRender   MessageType = "render"
	TypeFeedback MessageType = "feedback"
	TypeRequest  MessageType = "request"
	TypeEdit     MessageType = "edit"
	TypeLoaded   MessageType = "loaded"

	// control plane -> renderer
	TypeEffects MessageType = "effects"
	TypeLoad    MessageType = "load"
	TypeSwitch  MessageType = "switch"
	TypeError   MessageType = "error"
)

// Inbound is a message read from a renderer. Data is decoded per Type.
type Inbound struct {
	Type MessageType     `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Outbound is a message written to renderers.
type Outbound struct {
	Type MessageType `json:"type"`
	ID   string      `json:"id,omitempty"`
	Data any         `json:"data,omitempty"`
}

// LoadData asks the renderer to apply a preset to one layer.
type LoadData struct {
	Scope   preset.Scope      `json:"scope"`
	Preset  preset.Descriptor `json:"preset"`
	Content string            `json:"content"`
}

// LoadedData acknowledges a load. Error is the renderer's message, empty on
// success.
type LoadedData struct {
	Error string `json:"error,omitempty"`
}

// EditData is a direct human macro edit.
type EditData struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}
