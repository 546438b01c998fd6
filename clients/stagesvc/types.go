package stagesvc

// Result is the verdict a stage automation service reports. All four stage
// services answer in this shape: success plus optional data on the happy
// path, an error string when the collaborator ran but could not finish its
// work.
type Result struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
	Message string         `json:"message,omitempty"`
}
