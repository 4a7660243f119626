package mcpserver

// ForeignKeyContract describes the foreign key declaration document that
// LLM consumers should send to validate_foreign_key and check_foreign_key.
const ForeignKeyContract = `# Tablekit Foreign Key Declaration

A declaration links columns of one resource to columns of another.

## Structure

` + "```" + `json
{
  "fields": "person_id",
  "reference": {
    "resource": "people",
    "fields": "id"
  }
}
` + "```" + `

## Rules

1. **Both properties are required.** ` + "`" + `fields` + "`" + ` and ` + "`" + `reference` + "`" + ` must be present.
2. **Reference properties are required.** ` + "`" + `reference.resource` + "`" + ` and ` + "`" + `reference.fields` + "`" + ` must be present.
3. **Fields** are a column name or an array of column names.
4. **Same shape on both sides.** A string pairs with a string. An array pairs
   with an array of the same length; position i maps to position i.
5. **Self reference.** An empty ` + "`" + `resource` + "`" + ` means the declaring resource itself.
6. **Resource names** are the data file path without extension, with forward
   slashes (` + "`" + `geo/cities.csv` + "`" + ` is ` + "`" + `geo/cities` + "`" + `).

## Composite example

` + "```" + `json
{
  "fields": ["country", "city"],
  "reference": {
    "resource": "geo/cities",
    "fields": ["country_code", "name"]
  }
}
` + "```" + `

Several declarations may be sent at once as a JSON array.
`
