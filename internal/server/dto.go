package server

// CreateTaskRequest is the body of POST /task. Audit fields are server-owned;
// a posted-back task representation is accepted and its extra members ignored.
type CreateTaskRequest struct {
	_           struct{} `json:"-" additionalProperties:"true"`
	Name        string   `json:"name" minLength:"1" example:"Write report"`
	Description *string  `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty" example:"[\"A\",\"B\"]"`
	Groups      []string `json:"groups,omitempty" example:"[\"1\"]"`
}

// PatchOperation is one RFC 6902 operation. Members an operation does not
// define are ignored.
type PatchOperation struct {
	_     struct{} `json:"-" additionalProperties:"true"`
	Op    string   `json:"op" enum:"add,remove,replace,move,copy,test"`
	Path  string   `json:"path" example:"/name"`
	From  string   `json:"from,omitempty"`
	Value any      `json:"value,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id" example:"alice"`
}

type DevLoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
}
