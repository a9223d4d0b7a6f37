package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"

	"github.com/xeipuuv/gojsonschema"

	"github.com/bidscreen/bidscreen-server/errortypes"
)

const schemaFilename = "policy-schema.json"

// A SchemaValidator enforces the policy document format.
//
// Policy documents arrive from several backends and from the events API, so
// structural checks happen once here rather than in every consumer.
type SchemaValidator interface {
	Validate(policy json.RawMessage) error
	// Schema returns the JSON schema used to perform validation.
	Schema() string
}

// NewSchemaValidator makes a SchemaValidator from the schema file inside
// schemaDirectory. This will error if the schema is missing or malformed.
func NewSchemaValidator(schemaDirectory string) (SchemaValidator, error) {
	filesystem := http.Dir(schemaDirectory)

	schemaLoader := gojsonschema.NewReferenceLoaderFileSystem(fmt.Sprintf("file:///%s", schemaFilename), filesystem)
	loadedSchema, err := gojsonschema.NewSchema(schemaLoader)
	if err != nil {
		return nil, fmt.Errorf("Failed to load json schema at %s/%s: %v", schemaDirectory, schemaFilename, err)
	}

	fileBytes, err := ioutil.ReadFile(fmt.Sprintf("%s/%s", schemaDirectory, schemaFilename))
	if err != nil {
		return nil, fmt.Errorf("Failed to read file %s/%s: %v", schemaDirectory, schemaFilename, err)
	}

	return &schemaValidator{
		schemaContents: string(fileBytes),
		parsedSchema:   loadedSchema,
	}, nil
}

type schemaValidator struct {
	schemaContents string
	parsedSchema   *gojsonschema.Schema
}

func (validator *schemaValidator) Validate(policy json.RawMessage) error {
	result, err := validator.parsedSchema.Validate(gojsonschema.NewBytesLoader(policy))
	if err != nil {
		return &errortypes.MalformedPolicy{Message: err.Error()}
	}
	if !result.Valid() {
		errBuilder := bytes.NewBuffer(make([]byte, 0, 300))
		for _, err := range result.Errors() {
			errBuilder.WriteString(err.String())
		}
		return &errortypes.MalformedPolicy{Message: errBuilder.String()}
	}
	return nil
}

func (validator *schemaValidator) Schema() string {
	return validator.schemaContents
}
