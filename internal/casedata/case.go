package casedata

// Case is the underwriting case aggregate supplied by the case collaborator.
// The rule engine only reads it.
type Case struct {
	ID          string  `json:"id,omitempty"`
	Reference   string  `json:"reference,omitempty"`
	SumAssured  float64 `json:"sumAssured"`
	Status      string  `json:"status,omitempty"`
	ProductType string  `json:"productType,omitempty"`
	Channel     string  `json:"channel,omitempty"`

	Applicant          Applicant           `json:"applicant"`
	MedicalDisclosures []MedicalDisclosure `json:"medicalDisclosures"`
	RiskFactors        []RiskFactor        `json:"riskFactors"`
	TestResults        []TestResult        `json:"testResults"`
}

// Applicant holds the personal and build data of the life to be assured.
// Age and BMI are optional; the context builder derives them when absent.
type Applicant struct {
	FirstName     string   `json:"firstName,omitempty"`
	LastName      string   `json:"lastName,omitempty"`
	DateOfBirth   string   `json:"dateOfBirth,omitempty"`
	Age           *int     `json:"age,omitempty"`
	Gender        string   `json:"gender,omitempty"`
	SmokingStatus string   `json:"smokingStatus,omitempty"`
	HeightCm      *float64 `json:"heightCm,omitempty"`
	WeightKg      *float64 `json:"weightKg,omitempty"`
	BMI           *float64 `json:"bmi,omitempty"`
	Occupation    string   `json:"occupation,omitempty"`
	AnnualIncome  *float64 `json:"annualIncome,omitempty"`
	Country       string   `json:"country,omitempty"`

	// Attributes carries product specific answers not modelled above.
	Attributes map[string]any `json:"attributes,omitempty"`
}

// MedicalDisclosure is one answer of the medical questionnaire: a condition,
// a medication or a family history entry.
type MedicalDisclosure struct {
	ID                 string         `json:"id,omitempty"`
	DisclosureType     string         `json:"disclosureType"`
	ConditionName      string         `json:"conditionName,omitempty"`
	ConditionStatus    string         `json:"conditionStatus,omitempty"`
	DiagnosisDate      string         `json:"diagnosisDate,omitempty"`
	MedicationName     string         `json:"medicationName,omitempty"`
	FamilyCondition    string         `json:"familyCondition,omitempty"`
	FamilyRelationship string         `json:"familyRelationship,omitempty"`
	AgeAtOnset         *int           `json:"ageAtOnset,omitempty"`
	Details            map[string]any `json:"details,omitempty"`
}

// RiskFactor is a risk factor already recorded on the case.
type RiskFactor struct {
	FactorName       string  `json:"factorName"`
	Category         string  `json:"category,omitempty"`
	Severity         string  `json:"severity,omitempty"`
	ComplexityWeight float64 `json:"complexityWeight,omitempty"`
	Source           string  `json:"source,omitempty"`
}

// TestResult is the outcome of a diagnostic test ordered on the case.
type TestResult struct {
	TestCode   string `json:"testCode"`
	TestName   string `json:"testName,omitempty"`
	Value      any    `json:"value,omitempty"`
	Unit       string `json:"unit,omitempty"`
	IsAbnormal bool   `json:"isAbnormal"`
	ResultDate string `json:"resultDate,omitempty"`
}
