package domain

// EntityType names the owner kind of lookup values and history rows.
type EntityType string

const EntityTypeTask EntityType = "TASK"

type LookupValueType string

const (
	LookupValueGroup LookupValueType = "GROUP"
	LookupValueTag   LookupValueType = "TAG"
)

type HistoryType string

const (
	HistoryCreated HistoryType = "CREATED"
	HistoryUpdated HistoryType = "UPDATED"
	HistoryDeleted HistoryType = "DELETED"
)

type Task struct {
	ID          int64  `json:"id"`
	GUID        string `json:"guid"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedBy   string `json:"created_by"`
	CreatedOn   string `json:"created_on" format:"date-time"`
	ModifiedBy  string `json:"modified_by"`
	ModifiedOn  string `json:"modified_on" format:"date-time"`
}

// LookupValue attaches a tag or group to any entity by (type, id).
type LookupValue struct {
	ID         int64           `json:"id"`
	EntityType EntityType      `json:"entity_type"`
	EntityID   int64           `json:"entity_id"`
	ValueType  LookupValueType `json:"value_type" enum:"GROUP,TAG"`
	Value      string          `json:"value"`
}

// History is an append-only audit record. Rows outlive the entity they describe.
type History struct {
	ID         int64          `json:"id"`
	EntityType EntityType     `json:"entity_type"`
	EntityID   int64          `json:"entity_id"`
	EntityGUID string         `json:"entity_guid,omitempty"`
	EventType  HistoryType    `json:"event_type" enum:"CREATED,UPDATED,DELETED"`
	CreatedBy  string         `json:"created_by"`
	CreatedOn  string         `json:"created_on" format:"date-time"`
	Detail     map[string]any `json:"detail,omitempty" jsonschema:"type=object,additionalProperties=true"`
}
