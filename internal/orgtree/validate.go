package orgtree

import "fmt"

// ValidateAll checks a proposed (parent, name) for unitID against the
// structural invariants and returns every violation, or nil. unitID 0
// denotes a unit that does not exist yet.
//
// Checks run in this order: parent existence, sibling name uniqueness,
// cycle, depth, inactive parent.
func (f *Forest) ValidateAll(unitID uint, parent *uint, name string) ValidationErrors {
	var errs ValidationErrors

	if parent != nil {
		if _, ok := f.nodes[*parent]; !ok {
			return ValidationErrors{{
				Kind:    KindParentNotFound,
				Field:   "parent_id",
				Message: fmt.Sprintf("parent unit %d does not exist", *parent),
			}}
		}
	}

	if f.nameTaken(unitID, parent, name) {
		errs = append(errs, &ValidationError{
			Kind:    KindDuplicateName,
			Field:   "name",
			Message: fmt.Sprintf("an active unit named %q already exists under this parent", name),
		})
	}

	cycle := parent != nil && unitID != 0 && (*parent == unitID || f.IsDescendant(unitID, *parent))
	if cycle {
		errs = append(errs, &ValidationError{
			Kind:    KindCycle,
			Field:   "parent_id",
			Message: "a unit cannot be its own parent or be placed under one of its descendants",
		})
	}

	// Depth is meaningless along a cyclic chain; report it only for a sound move.
	if !cycle {
		depth := 0
		if parent != nil {
			depth = f.Depth(*parent) + 1
		}
		if _, ok := f.nodes[unitID]; ok && unitID != 0 {
			depth += f.height(unitID)
		}
		if depth > f.maxDepth {
			errs = append(errs, &ValidationError{
				Kind:    KindMaxDepth,
				Field:   "parent_id",
				Message: fmt.Sprintf("maximum structure depth of %d exceeded", f.maxDepth),
			})
		}
	}

	if parent != nil && !f.nodes[*parent].Active {
		errs = append(errs, &ValidationError{
			Kind:    KindInactiveParent,
			Field:   "parent_id",
			Message: "parent unit is inactive",
		})
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Validate is ValidateAll returning a plain error. errors.As against
// *ValidationError yields the first violation.
func (f *Forest) Validate(unitID uint, parent *uint, name string) error {
	if errs := f.ValidateAll(unitID, parent, name); errs != nil {
		return errs
	}
	return nil
}

func (f *Forest) nameTaken(unitID uint, parent *uint, name string) bool {
	key := uint(0)
	if parent != nil {
		key = *parent
	}
	for _, id := range f.children[key] {
		if id == unitID {
			continue
		}
		if n := f.nodes[id]; n.Active && n.Name == name {
			return true
		}
	}
	return false
}
