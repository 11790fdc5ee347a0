package domain

// DocumentType classifies a contract for entity extraction.
type DocumentType string

const (
	// DocTypeGeneralContract is the default document type.
	DocTypeGeneralContract DocumentType = "general_contract"
)

// entityCatalog maps a document type to the entities extracted from it.
// The lists are static per domain; an empty list is a configuration error
// caught before any model call is made.
var entityCatalog = map[DocumentType][]string{
	DocTypeGeneralContract: {
		"Contract Title",
		"Effective Date",
		"Parties Involved",
		"Term of Contract",
		"Termination Clause",
		"Confidentiality Clause",
		"Governing Law",
		"Payment Terms",
		"Signatories",
	},
}

// EntitiesFor returns the entity list for a document type, or nil when the
// type is unknown.
func EntitiesFor(t DocumentType) []string {
	return entityCatalog[t]
}
