package openapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Generator builds the OpenAPI 3.0 document for the patient API.
type Generator struct {
	title   string
	version string
	baseURL string
}

// NewGenerator creates a generator. baseURL is advertised as the single
// server entry; an empty baseURL advertises the relative root.
func NewGenerator(title, version, baseURL string) *Generator {
	if title == "" {
		title = "Patient Service API"
	}
	if baseURL == "" {
		baseURL = "/"
	}
	return &Generator{title: title, version: version, baseURL: baseURL}
}

// GenerateSpec produces the OpenAPI 3.0 document as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	idParam := pathParam("id", "Patient identifier", map[string]interface{}{"type": "string", "format": "uuid"})
	mrnParam := pathParam("mrn", "Medical record number", map[string]interface{}{"type": "string"})

	paths := map[string]interface{}{
		"/api/patients": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "List all patients",
				"operationId": "listPatients",
				"tags":        []string{"Patient"},
				"security":    bearer(),
				"responses": map[string]interface{}{
					"200": arrayResponse("Patients in creation order", "#/components/schemas/PatientResponse"),
					"401": errorResponse("Missing or invalid token"),
				},
			},
			"post": map[string]interface{}{
				"summary":     "Create a patient",
				"operationId": "createPatient",
				"tags":        []string{"Patient"},
				"security":    bearer(),
				"requestBody": requestBody("#/components/schemas/CreatePatientRequest"),
				"responses": map[string]interface{}{
					"201": response("Created", "#/components/schemas/PatientResponse"),
					"400": errorResponse("Validation failed"),
					"403": errorResponse("Caller lacks the admin or registrar role"),
					"409": errorResponse("Medical record number, email or phone already in use"),
				},
			},
		},
		"/api/patients/{id}": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Get a patient by id",
				"operationId": "getPatient",
				"tags":        []string{"Patient"},
				"security":    bearer(),
				"parameters":  []map[string]interface{}{idParam},
				"responses": map[string]interface{}{
					"200": response("Success", "#/components/schemas/PatientResponse"),
					"404": errorResponse("Patient not found"),
				},
			},
			"put": map[string]interface{}{
				"summary":     "Replace a patient",
				"operationId": "updatePatient",
				"tags":        []string{"Patient"},
				"security":    bearer(),
				"parameters":  []map[string]interface{}{idParam},
				"requestBody": requestBody("#/components/schemas/UpdatePatientRequest"),
				"responses": map[string]interface{}{
					"200": response("Updated", "#/components/schemas/PatientResponse"),
					"400": errorResponse("Validation failed or body id differs from path id"),
					"403": errorResponse("Caller lacks the admin or registrar role"),
					"404": errorResponse("Patient not found"),
					"409": errorResponse("Medical record number, email or phone already in use"),
				},
			},
			"delete": map[string]interface{}{
				"summary":     "Delete a patient",
				"operationId": "deletePatient",
				"tags":        []string{"Patient"},
				"security":    bearer(),
				"parameters":  []map[string]interface{}{idParam},
				"responses": map[string]interface{}{
					"204": map[string]interface{}{"description": "Deleted"},
					"403": errorResponse("Caller lacks the admin or registrar role"),
					"404": errorResponse("Patient not found"),
				},
			},
		},
		"/api/patients/mrn/{mrn}": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Get a patient by medical record number",
				"operationId": "getPatientByMRN",
				"tags":        []string{"Patient"},
				"security":    bearer(),
				"parameters":  []map[string]interface{}{mrnParam},
				"responses": map[string]interface{}{
					"200": response("Success", "#/components/schemas/PatientResponse"),
					"404": errorResponse("Patient not found"),
				},
			},
		},
		"/api/health": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Service health",
				"operationId": "health",
				"tags":        []string{"Health"},
				"responses": map[string]interface{}{
					"200": response("Service and database status", "#/components/schemas/HealthResponse"),
				},
			},
		},
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       g.title,
			"version":     g.version,
			"description": "Create, read, update and delete patient records",
		},
		"servers": []map[string]string{
			{"url": g.baseURL},
		},
		"paths": paths,
		"components": map[string]interface{}{
			"securitySchemes": map[string]interface{}{
				"bearerAuth": map[string]interface{}{
					"type":         "http",
					"scheme":       "bearer",
					"bearerFormat": "JWT",
				},
			},
			"schemas": buildComponentSchemas(),
		},
	}
}

func bearer() []map[string][]string {
	return []map[string][]string{{"bearerAuth": {}}}
}

func pathParam(name, desc string, schema map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"in":          "path",
		"required":    true,
		"description": desc,
		"schema":      schema,
	}
}

func ref(schemaRef string) map[string]interface{} {
	return map[string]interface{}{"$ref": schemaRef}
}

func requestBody(schemaRef string) map[string]interface{} {
	return map[string]interface{}{
		"required": true,
		"content": map[string]interface{}{
			echo.MIMEApplicationJSON: map[string]interface{}{"schema": ref(schemaRef)},
		},
	}
}

func response(description, schemaRef string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			echo.MIMEApplicationJSON: map[string]interface{}{"schema": ref(schemaRef)},
		},
	}
}

func arrayResponse(description, itemRef string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			echo.MIMEApplicationJSON: map[string]interface{}{
				"schema": map[string]interface{}{"type": "array", "items": ref(itemRef)},
			},
		},
	}
}

func errorResponse(description string) map[string]interface{} {
	return response(description, "#/components/schemas/ErrorResponse")
}

func str(maxLen int) map[string]interface{} {
	s := map[string]interface{}{"type": "string"}
	if maxLen > 0 {
		s["maxLength"] = maxLen
	}
	return s
}

func formatted(format string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "format": format}
}

func nullable(schema map[string]interface{}) map[string]interface{} {
	schema["nullable"] = true
	return schema
}

func object(required []string, props map[string]interface{}) map[string]interface{} {
	s := map[string]interface{}{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

const phonePattern = `^\+?[0-9\s()-]{8,20}$`

func phone() map[string]interface{} {
	return map[string]interface{}{"type": "string", "pattern": phonePattern}
}

// buildComponentSchemas mirrors the request validation rules.
func buildComponentSchemas() map[string]interface{} {
	address := object(
		[]string{"street", "city", "state", "zipCode", "country"},
		map[string]interface{}{
			"street":  str(100),
			"city":    str(50),
			"state":   str(50),
			"zipCode": str(20),
			"country": str(50),
		})

	contact := object(
		[]string{"phoneNumber", "email"},
		map[string]interface{}{
			"phoneNumber":            phone(),
			"email":                  map[string]interface{}{"type": "string", "format": "email", "maxLength": 100},
			"alternativePhoneNumber": phone(),
		})

	emergency := object(
		[]string{"name", "relationship", "phoneNumber", "email", "address"},
		map[string]interface{}{
			"name":         str(100),
			"relationship": str(50),
			"phoneNumber":  phone(),
			"email":        map[string]interface{}{"type": "string", "format": "email", "maxLength": 100},
			"address":      ref("#/components/schemas/Address"),
		})

	insurance := object(
		[]string{"provider", "policyNumber", "policyHolderName", "effectiveDate", "coverageType"},
		map[string]interface{}{
			"provider":         str(100),
			"policyNumber":     str(50),
			"groupNumber":      str(50),
			"policyHolderName": str(100),
			"effectiveDate":    formatted("date"),
			"expirationDate":   nullable(formatted("date")),
			"coverageType":     str(50),
		})

	patientProps := func() map[string]interface{} {
		return map[string]interface{}{
			"medicalRecordNumber": map[string]interface{}{"type": "string", "minLength": 5, "maxLength": 50},
			"firstName":           str(100),
			"lastName":            str(100),
			"dateOfBirth":         formatted("date"),
			"gender":              str(20),
			"address":             ref("#/components/schemas/Address"),
			"contactInfo":         ref("#/components/schemas/ContactInfo"),
			"emergencyContacts": map[string]interface{}{
				"type":  "array",
				"items": ref("#/components/schemas/EmergencyContact"),
			},
			"insuranceInfo": ref("#/components/schemas/InsuranceInfo"),
		}
	}
	requiredFields := []string{"medicalRecordNumber", "firstName", "lastName", "dateOfBirth", "gender", "address", "contactInfo"}

	create := object(requiredFields, patientProps())

	updateProps := patientProps()
	updateProps["id"] = formatted("uuid")
	update := object(requiredFields, updateProps)

	respProps := patientProps()
	respProps["id"] = formatted("uuid")
	respProps["createdAt"] = formatted("date-time")
	respProps["updatedAt"] = formatted("date-time")
	resp := object(append([]string{"id"}, append(requiredFields, "createdAt", "updatedAt")...), respProps)

	errResp := object(
		[]string{"timestamp", "status", "error", "message", "path", "errorCode"},
		map[string]interface{}{
			"timestamp": formatted("date-time"),
			"status":    map[string]interface{}{"type": "integer"},
			"error":     str(0),
			"message":   str(0),
			"path":      str(0),
			"errorCode": map[string]interface{}{
				"type": "string",
				"enum": []string{
					"UNKNOWN_ERROR", "VALIDATION_ERROR", "PATIENT_NOT_FOUND", "PATIENT_ALREADY_EXISTS",
					"DUPLICATE_MEDICAL_RECORD_NUMBER", "DUPLICATE_EMAIL", "DUPLICATE_PHONE_NUMBER",
					"DATABASE_ERROR", "NETWORK_ERROR",
				},
			},
			"validationErrors": map[string]interface{}{
				"type":                 "object",
				"additionalProperties": map[string]string{"type": "string"},
			},
		})

	health := object(
		[]string{"serviceVersion", "environment", "dbStatus", "timestamp"},
		map[string]interface{}{
			"serviceVersion": str(0),
			"environment":    str(0),
			"dbStatus":       str(0),
			"timestamp":      formatted("date-time"),
		})

	return map[string]interface{}{
		"Address":              address,
		"ContactInfo":          contact,
		"EmergencyContact":     emergency,
		"InsuranceInfo":        insurance,
		"CreatePatientRequest": create,
		"UpdatePatientRequest": update,
		"PatientResponse":      resp,
		"ErrorResponse":        errResp,
		"HealthResponse":       health,
	}
}

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Patient Service API - Swagger UI</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" >
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({ url: "/api/openapi.json", dom_id: '#swagger-ui', deepLinking: true })
  </script>
</body>
</html>`

// RegisterRoutes registers the OpenAPI endpoints. The document is built
// once; it does not change at runtime.
func (g *Generator) RegisterRoutes(apiGroup *echo.Group) {
	spec := g.GenerateSpec()
	apiGroup.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, spec)
	})
	apiGroup.GET("/docs", func(c echo.Context) error {
		return c.HTML(http.StatusOK, swaggerUIHTML)
	})
}
