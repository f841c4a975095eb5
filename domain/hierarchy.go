package domain

// Canonical permitted-recipient table. Hours flow strictly downward: each
// level may allocate to any strictly lower level, which keeps the hierarchy an
// acyclic, depth-bounded DAG. Skip-level allocation (e.g. Owner straight to an
// Employee) is deliberately permitted; legality depends on the type pair, not
// on the parent link.
var permittedRecipients = map[EntityType]map[EntityType]bool{
	EntityTypeOwner: {
		EntityTypeDeveloper: true,
		EntityTypeOperator:  true,
		EntityTypeCorporate: true,
		EntityTypeEmployee:  true,
	},
	EntityTypeDeveloper: {
		EntityTypeOperator:  true,
		EntityTypeCorporate: true,
		EntityTypeEmployee:  true,
	},
	EntityTypeOperator: {
		EntityTypeCorporate: true,
		EntityTypeEmployee:  true,
	},
	EntityTypeCorporate: {
		EntityTypeEmployee: true,
	},
	// Employee is terminal and may not redistribute.
	EntityTypeEmployee: {},
}

// CanAllocate reports whether from may allocate hours to to. Pure and
// deterministic; unknown types are never permitted.
func CanAllocate(from, to EntityType) bool {
	return permittedRecipients[from][to]
}

// PermittedRecipients returns the set of types from may allocate to
func PermittedRecipients(from EntityType) []EntityType {
	var out []EntityType
	for _, t := range []EntityType{EntityTypeDeveloper, EntityTypeOperator, EntityTypeCorporate, EntityTypeEmployee} {
		if permittedRecipients[from][t] {
			out = append(out, t)
		}
	}
	return out
}
