package schema

// AdminCollectionName is the reserved auth collection holding admin
// accounts. It is created on first boot and cannot be dropped.
const AdminCollectionName = "_admins"

// AdminCollection builds the system admin collection definition. All
// rules are nil: only admins touch admin records.
func AdminCollection() *Collection {
	return &Collection{
		ID:     AdminCollectionName,
		Name:   AdminCollectionName,
		Kind:   KindAuth,
		System: true,
	}
}
