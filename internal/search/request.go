package search

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// requestSchema accepts any object carrying a non-blank destination or a
// positive region id under regionId or region_id. Other fields pass through.
const requestSchema = `{
  "type": "object",
  "anyOf": [
    {
      "required": ["destination"],
      "properties": {"destination": {"type": "string", "pattern": "\\S"}}
    },
    {
      "required": ["regionId"],
      "properties": {"regionId": {"$ref": "#/definitions/regionId"}}
    },
    {
      "required": ["region_id"],
      "properties": {"region_id": {"$ref": "#/definitions/regionId"}}
    }
  ],
  "definitions": {
    "regionId": {
      "type": ["integer", "string"],
      "minimum": 1,
      "pattern": "^[1-9][0-9]*$"
    }
  }
}`

var requestValidator = mustSchema(requestSchema)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("compiling request schema: %v", err))
	}
	return s
}

// Request is a validated inbound search request. Body is forwarded to the
// upstream verbatim.
type Request struct {
	Destination string
	RegionID    int64
	HasRegion   bool
	Body        []byte
	RequestID   string
}

// ValidationError is returned for requests rejected before any network call.
type ValidationError struct {
	Message string
	Details []string
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Details, "; ")
}

// ParseRequest validates a raw request body.
func ParseRequest(body []byte, requestID string) (Request, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Request{}, &ValidationError{Message: "Request body is required"}
	}

	var doc map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil || doc == nil {
		return Request{}, &ValidationError{Message: "Request body must be a JSON object"}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return Request{}, &ValidationError{Message: "Request body must be a single JSON object"}
	}

	result, err := requestValidator.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return Request{}, &ValidationError{Message: "Request body must be a JSON object", Details: []string{err.Error()}}
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}
		return Request{}, &ValidationError{Message: "destination or regionId is required", Details: details}
	}

	req := Request{Body: body, RequestID: requestID}
	if d, ok := doc["destination"].(string); ok {
		req.Destination = strings.TrimSpace(d)
	}
	for _, key := range []string{"regionId", "region_id"} {
		v, present := doc[key]
		if !present || v == nil {
			continue
		}
		id, ok := regionID(v)
		if !ok {
			return Request{}, &ValidationError{
				Message: "regionId must be a positive 64-bit integer",
				Details: []string{fmt.Sprintf("%s: %v", key, v)},
			}
		}
		if !req.HasRegion {
			req.RegionID = id
			req.HasRegion = true
		}
	}

	return req, nil
}

// regionID accepts decimal strings and any integral JSON number, including
// forms like 42.0 and 1e3.
func regionID(v any) (int64, bool) {
	var n int64
	switch id := v.(type) {
	case json.Number:
		f, _, err := big.ParseFloat(id.String(), 10, 256, big.ToNearestEven)
		if err != nil || !f.IsInt() {
			return 0, false
		}
		i, acc := f.Int64()
		if acc != big.Exact {
			return 0, false
		}
		n = i
	case string:
		i, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return 0, false
		}
		n = i
	default:
		return 0, false
	}
	return n, n > 0
}
