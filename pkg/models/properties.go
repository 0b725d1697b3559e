package models

// Well-known graph property names used by the synchronization core.
const (
	// PropertyTitle holds an element's display title.
	PropertyTitle = "title"
	// PropertyConceptType holds an element's ontology concept.
	PropertyConceptType = "conceptType"
)
