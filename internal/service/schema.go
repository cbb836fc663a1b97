package service

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// ReportSchema is the json schema of the report returned by /api/fetch-grades.
func ReportSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
	}
	schema := r.Reflect(&FetchGradesResponse{})
	schema.Title = "Massar grade report"
	schema.Description = "A report card parsed from the Massar portal, every score is kept as displayed."

	return json.MarshalIndent(schema, "", "  ")
}
