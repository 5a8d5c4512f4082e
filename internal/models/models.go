package models

import "encoding/json"

// Submission is one water sample as received from the caller, keyed by payload field name.
type Submission map[string]string

// Payload keys that are stored but not sent to the model.
const (
	KeyLocation        = "location"
	KeyTestDate        = "test_date"
	KeyWaterSource     = "water_source"
	KeyAdditionalNotes = "additional_notes"
)

// PredictionField binds a payload key to the model flag and storage column it feeds.
type PredictionField struct {
	Key    string
	Flag   string
	Column string
}

// PredictionContractVersion identifies the argument list the external model accepts.
// Bump it whenever PredictionFields changes order or flag names.
const PredictionContractVersion = 1

// PredictionFields is the canonical, ordered argument contract with the external model.
var PredictionFields = [...]PredictionField{
	{Key: "ph", Flag: "--pH", Column: "ph_level"},
	{Key: "turbidity", Flag: "--turbidity", Column: "turbidity"},
	{Key: "temperature", Flag: "--temperature", Column: "temperature"},
	{Key: "conductivity", Flag: "--conductivity", Column: "electrical_conductivity"},
	{Key: "oxygen", Flag: "--dissolved_oxygen", Column: "dissolved_oxygen"},
	{Key: "salinity", Flag: "--salinity", Column: "salinity"},
	{Key: "tds", Flag: "--total_dissolved_solids", Column: "total_dissolved_solids"},
	{Key: "hardness", Flag: "--hardness", Column: "hardness"},
	{Key: "alkalinity", Flag: "--alkalinity", Column: "alkalinity"},
	{Key: "chlorine", Flag: "--chlorine", Column: "chlorine"},
	{Key: "total_coliforms", Flag: "--total_coliforms", Column: "total_coliforms"},
	{Key: "e_coli", Flag: "--e_coli", Column: "e_coli"},
}

// PredictionRequest holds the parsed measurements, index-aligned with PredictionFields.
type PredictionRequest [len(PredictionFields)]float64

// PredictionResult is the decoded stdout of a successful model run.
type PredictionResult struct {
	Status          string          `json:"status"`
	Recommendations json.RawMessage `json:"recommendations,omitempty"`

	ExitCode int    `json:"-"`
	Stderr   string `json:"-"`
}

// Record is what the persistence sequencer writes after the caller has its answer.
type Record struct {
	RequestID  string
	SubjectID  string
	Submission Submission
	Request    PredictionRequest
	Prediction string
}

// StoredTest represents a row of water_tests
type StoredTest struct {
	ID                     int64   `json:"id"`
	Location               string  `json:"location"`
	TestDate               *string `json:"test_date,omitempty"`
	PHLevel                float64 `json:"ph_level"`
	Turbidity              float64 `json:"turbidity"`
	Temperature            float64 `json:"temperature"`
	ElectricalConductivity float64 `json:"electrical_conductivity"`
	DissolvedOxygen        float64 `json:"dissolved_oxygen"`
	Salinity               float64 `json:"salinity"`
	TotalDissolvedSolids   float64 `json:"total_dissolved_solids"`
	Hardness               float64 `json:"hardness"`
	Alkalinity             float64 `json:"alkalinity"`
	Chlorine               float64 `json:"chlorine"`
	TotalColiforms         float64 `json:"total_coliforms"`
	EColi                  float64 `json:"e_coli"`
	WaterSource            string  `json:"water_source"`
	AdditionalNotes        string  `json:"additional_notes"`
	Prediction             *string `json:"prediction,omitempty"`
}
