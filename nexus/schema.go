package nexus

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
)

// uuidFieldIndex indexes a uuid.UUID-typed struct field. go-memdb's
// built-in indexers cover strings and a handful of scalar kinds but
// not uuid.UUID directly, so the registry carries this small adapter.
type uuidFieldIndex struct {
	Field string
}

func (u *uuidFieldIndex) FromArgs(args ...any) ([]byte, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("index requires exactly one argument")
	}
	id, ok := args[0].(uuid.UUID)
	if !ok {
		return nil, fmt.Errorf("argument must be a uuid.UUID: %#v", args[0])
	}
	return id[:], nil
}

func (u *uuidFieldIndex) FromObject(obj any) (bool, []byte, error) {
	fv, err := fieldByName(obj, u.Field)
	if err != nil {
		return false, nil, err
	}
	id, ok := fv.(uuid.UUID)
	if !ok {
		return false, nil, fmt.Errorf("field %q is not a uuid.UUID", u.Field)
	}
	if id == uuid.Nil {
		return false, nil, nil
	}
	return true, id[:], nil
}

func fieldByName(obj any, name string) (any, error) {
	switch v := obj.(type) {
	case *Project:
		return v.field(name)
	case *Instance:
		return v.field(name)
	case *Sled:
		return v.field(name)
	default:
		return nil, fmt.Errorf("unsupported object type %T for indexing", obj)
	}
}

var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		"project": {
			Name: "project",
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &uuidFieldIndex{Field: "ID"},
				},
				"name": {
					Name:    "name",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "Name"},
				},
			},
		},
		"instance": {
			Name: "instance",
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &uuidFieldIndex{Field: "ID"},
				},
				"project_name": {
					Name:   "project_name",
					Unique: true,
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&uuidFieldIndex{Field: "ProjectID"},
							&memdb.StringFieldIndex{Field: "Name"},
						},
					},
				},
				"project_id": {
					Name:    "project_id",
					Unique:  false,
					Indexer: &uuidFieldIndex{Field: "ProjectID"},
				},
			},
		},
		"sled": {
			Name: "sled",
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &uuidFieldIndex{Field: "ID"},
				},
			},
		},
	},
}
