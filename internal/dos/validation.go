package dos

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Shared definitions, referenced from the document schemas below. Unknown
// members are allowed everywhere since firmware releases add fields.
const schemaDefinitions = `
"definitions": {
	"release": {
		"type": "object",
		"required": ["buildType", "canonicalVersion", "version"],
		"properties": {
			"buildType": {"type": "string"},
			"canonicalVersion": {"type": "string"},
			"version": {"type": "string"}
		}
	},
	"source": {
		"type": "object",
		"required": ["deviceId", "sourceId", "type"],
		"properties": {
			"deviceId": {"type": "string"},
			"sourceId": {"type": "string"},
			"type": {"enum": [
				"airplay2", "bluetooth", "digital_left", "digital_right", "line",
				"upnp", "optical", "optical_left", "optical_right", "opticaljack",
				"opticaljack_left", "opticaljack_right", "phono", "raat", "spotifyconnect"
			]}
		}
	},
	"errorBody": {
		"type": "object",
		"required": ["code", "message"],
		"properties": {
			"code": {"type": "string"},
			"message": {"type": "string"}
		}
	}
}`

// deviceId and groupId must be non-empty because discovery keys and clusters
// on them
var deviceInformationSchema = mustSchema(`{
	"type": "object",
	"required": [
		"availableFeatures", "deviceId", "deviceName", "firmwareFamily", "groupId",
		"installationId", "ipControlVersion", "isSystemLeader", "model", "modelFamily",
		"powerRating", "release", "role", "serial", "setupState", "systemId"
	],
	"properties": {
		"availableFeatures": {"type": "array", "items": {"type": "string"}},
		"deviceId": {"type": "string", "minLength": 1},
		"deviceName": {"type": "string"},
		"firmwareFamily": {"type": "string"},
		"groupId": {"type": "string", "minLength": 1},
		"installationId": {"type": "string"},
		"ipControlVersion": {"type": "string"},
		"isSystemLeader": {"type": "boolean"},
		"model": {"type": "string"},
		"modelFamily": {"type": "string"},
		"powerRating": {"type": "string"},
		"release": {"$ref": "#/definitions/release"},
		"role": {"type": "string"},
		"serial": {"type": "string"},
		"setupState": {"type": "string"},
		"systemId": {"type": "string"}
	},
	` + schemaDefinitions + `
}`)

var sourcesSchema = mustSchema(`{
	"type": "object",
	"required": ["sources"],
	"properties": {
		"sources": {"type": "array", "items": {"$ref": "#/definitions/source"}}
	},
	` + schemaDefinitions + `
}`)

// The device clamps volume to 0..100 the same way SetVolume does
var volumeSchema = mustSchema(`{
	"type": "object",
	"required": ["volume"],
	"properties": {
		"volume": {"type": "integer", "minimum": 0, "maximum": 100}
	}
}`)

var nightModeSchema = mustSchema(`{
	"type": "object",
	"required": ["nightMode"],
	"properties": {
		"nightMode": {"enum": ["on", "off"]}
	}
}`)

// errorEnvelopeSchema only tells an error document apart from a group state;
// errorDocumentSchema checks its contents
var errorEnvelopeSchema = mustSchema(`{
	"type": "object",
	"required": ["error"],
	"properties": {
		"error": {"type": "object"}
	}
}`)

var errorDocumentSchema = mustSchema(`{
	"type": "object",
	"required": ["error"],
	"properties": {
		"error": {"$ref": "#/definitions/errorBody"}
	},
	` + schemaDefinitions + `
}`)

// "pause" is what older firmware reports instead of "paused"
var groupStateSchema = mustSchema(`{
	"type": "object",
	"required": ["availableOperations", "muteState", "peerDeviceName", "playingState", "source"],
	"properties": {
		"availableOperations": {
			"type": "array",
			"items": {"enum": ["play", "pause", "next", "previous", "seek"]}
		},
		"muteState": {"enum": ["muted", "unmuted"]},
		"peerDeviceName": {"type": "string"},
		"playingState": {"enum": ["playing", "paused", "pause"]},
		"source": {"$ref": "#/definitions/source"}
	},
	` + schemaDefinitions + `
}`)

func mustSchema(doc string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
	if err != nil {
		panic(fmt.Sprintf("dos: invalid JSON schema: %v", err))
	}
	return schema
}

// validate checks data against schema. Malformed JSON is a parse error, a
// shape mismatch is a validation error listing every violation.
func validate(endpoint string, schema *gojsonschema.Schema, data []byte) error {
	// The schema loader tolerates trailing bytes, so syntax is checked first
	if !json.Valid(data) {
		return NewParseError(endpoint, fmt.Errorf("body is not valid JSON"))
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return NewParseError(endpoint, err)
	}
	if !result.Valid() {
		violations := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			violations = append(violations, desc.String())
		}
		return NewValidationError(endpoint, strings.Join(violations, "; "))
	}
	return nil
}

// decodeValidated runs the schema check and then decodes into v
func decodeValidated(endpoint string, schema *gojsonschema.Schema, data []byte, v any) error {
	if err := validate(endpoint, schema, data); err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return NewValidationError(endpoint, err.Error())
	}
	return nil
}

// DecodeDeviceInformation validates and decodes a device information document
func DecodeDeviceInformation(data []byte) (DeviceInformation, error) {
	var info DeviceInformation
	if err := decodeValidated(PathDeviceInfo, deviceInformationSchema, data, &info); err != nil {
		return DeviceInformation{}, err
	}
	return info, nil
}

// DecodeSources validates and decodes the {"sources": [...]} document
func DecodeSources(data []byte) ([]Source, error) {
	var doc struct {
		Sources []Source `json:"sources"`
	}
	if err := decodeValidated(PathSources, sourcesSchema, data, &doc); err != nil {
		return nil, err
	}
	if doc.Sources == nil {
		doc.Sources = []Source{}
	}
	return doc.Sources, nil
}

// DecodeVolume validates and decodes the {"volume": n} document. A fractional
// or out of range level is a validation error.
func DecodeVolume(data []byte) (int, error) {
	var doc struct {
		Volume float64 `json:"volume"`
	}
	if err := decodeValidated(PathVolume, volumeSchema, data, &doc); err != nil {
		return 0, err
	}
	return int(doc.Volume), nil
}

// DecodeNightMode validates and decodes the {"nightMode": "on"|"off"} document
func DecodeNightMode(data []byte) (bool, error) {
	var doc struct {
		NightMode string `json:"nightMode"`
	}
	if err := decodeValidated(PathNightMode, nightModeSchema, data, &doc); err != nil {
		return false, err
	}
	return doc.NightMode == "on", nil
}

// isErrorEnvelope reports whether data has an object-valued "error" member
func isErrorEnvelope(data []byte) bool {
	result, err := errorEnvelopeSchema.Validate(gojsonschema.NewBytesLoader(data))
	return err == nil && result.Valid()
}

// decodeErrorBody reports whether data is a well-formed {"error": {...}} document
func decodeErrorBody(data []byte) (ErrorBody, bool) {
	var doc struct {
		Error ErrorBody `json:"error"`
	}
	if err := decodeValidated("", errorDocumentSchema, data, &doc); err != nil {
		return ErrorBody{}, false
	}
	return doc.Error, true
}

// DecodeCurrentSource validates the current source document, which is either a
// GroupState or an {"error": {...}} document. Exactly one of the first two
// returns is non-nil when err is nil.
func DecodeCurrentSource(data []byte) (*GroupState, *ErrorBody, error) {
	if !json.Valid(data) {
		return nil, nil, NewParseError(PathCurrentSource, fmt.Errorf("body is not valid JSON"))
	}

	if isErrorEnvelope(data) {
		var doc struct {
			Error ErrorBody `json:"error"`
		}
		if err := decodeValidated(PathCurrentSource, errorDocumentSchema, data, &doc); err != nil {
			return nil, nil, err
		}
		return nil, &doc.Error, nil
	}

	var state GroupState
	if err := decodeValidated(PathCurrentSource, groupStateSchema, data, &state); err != nil {
		return nil, nil, err
	}
	return &state, nil, nil
}
