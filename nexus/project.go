package nexus

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
	"github.com/sledctl/sledctl/apierr"
)

// ProjectCreateParams are the user-supplied fields for a new project.
type ProjectCreateParams struct {
	Name        string
	Description string
}

// ProjectCreate creates a new project. It fails with ObjectAlreadyExists
// if the name collides with an existing project.
func (c *Controller) ProjectCreate(params ProjectCreateParams) (*Project, error) {
	if err := ValidateName(params.Name); err != nil {
		return nil, err
	}

	txn := c.db.Txn(true)
	defer txn.Abort()

	if existing, _ := txn.First("project", "name", params.Name); existing != nil {
		return nil, apierr.AlreadyExists("project", params.Name)
	}

	now := time.Now()
	p := &Project{
		ID:          uuid.New(),
		Name:        params.Name,
		Description: params.Description,
		TimeCreated: now,
		TimeUpdated: now,
	}

	if err := txn.Insert("project", p); err != nil {
		return nil, apierr.Internal("inserting project: %v", err)
	}
	txn.Commit()

	return p.copy(), nil
}

// ProjectLookup finds a project by name. It fails with ObjectNotFound
// if no such project exists.
func (c *Controller) ProjectLookup(name string) (*Project, error) {
	txn := c.db.Txn(false)
	defer txn.Abort()
	return c.lookupProjectTxn(txn, name)
}

func (c *Controller) lookupProjectTxn(txn *memdb.Txn, name string) (*Project, error) {
	raw, err := txn.First("project", "name", name)
	if err != nil {
		return nil, apierr.Internal("looking up project %q: %v", name, err)
	}
	if raw == nil {
		return nil, apierr.NotFound("project", name)
	}
	return raw.(*Project), nil
}

// ProjectUpdateParams are the fields that may be changed by an update.
// A nil pointer means "leave unchanged".
type ProjectUpdateParams struct {
	Name        *string
	Description *string
}

// ProjectUpdate renames and/or redescribes a project, atomically
// enforcing name uniqueness against the rename within the same
// transaction that reads the current row.
func (c *Controller) ProjectUpdate(name string, params ProjectUpdateParams) (*Project, error) {
	txn := c.db.Txn(true)
	defer txn.Abort()

	proj, err := c.lookupProjectTxn(txn, name)
	if err != nil {
		return nil, err
	}
	updated := proj.copy()

	if params.Name != nil && *params.Name != proj.Name {
		if err := ValidateName(*params.Name); err != nil {
			return nil, err
		}
		if other, _ := txn.First("project", "name", *params.Name); other != nil {
			return nil, apierr.AlreadyExists("project", *params.Name)
		}
		updated.Name = *params.Name
	}
	if params.Description != nil {
		updated.Description = *params.Description
	}
	updated.TimeUpdated = time.Now()

	if err := txn.Insert("project", updated); err != nil {
		return nil, apierr.Internal("updating project: %v", err)
	}
	txn.Commit()

	return updated.copy(), nil
}

// ProjectDelete removes a project by name.
func (c *Controller) ProjectDelete(name string) error {
	txn := c.db.Txn(true)
	defer txn.Abort()

	proj, err := c.lookupProjectTxn(txn, name)
	if err != nil {
		return err
	}
	if err := txn.Delete("project", proj); err != nil {
		return apierr.Internal("deleting project: %v", err)
	}
	txn.Commit()
	return nil
}

// ProjectsList returns one page of projects per params.
func (c *Controller) ProjectsList(params PageParams) ([]*Project, error) {
	txn := c.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get("project", "id")
	if err != nil {
		return nil, apierr.Internal("listing projects: %v", err)
	}

	var all []*Project
	for raw := it.Next(); raw != nil; raw = it.Next() {
		all = append(all, raw.(*Project))
	}

	page := paginate(all, params,
		func(p *Project) string { return p.Name },
		func(p *Project) string { return p.ID.String() },
	)

	out := make([]*Project, len(page))
	for i, p := range page {
		out[i] = p.copy()
	}
	return out, nil
}
