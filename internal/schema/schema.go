// Package schema defines the canonical contract-metadata schema: the
// category/field catalog, the per-field result structure, strict validation
// of raw model output, and normalization into a schema-complete record.
package schema

// NotFound is the sentinel for absent information. Fields are never omitted,
// null, or empty — this literal is the only valid "absent" encoding.
const NotFound = "Not Found"

// MaxNotesLength caps validation.notes.
const MaxNotesLength = 500

// DefaultMaxFieldLength caps extracted_value when no override is configured.
const DefaultMaxFieldLength = 1000

// MatchFlag compares an extracted value against the reference template.
type MatchFlag string

const (
	MatchSame      MatchFlag = "same_as_template"
	MatchSimilar   MatchFlag = "similar_not_exact"
	MatchDifferent MatchFlag = "different_from_template"
	MatchReview    MatchFlag = "flag_for_review"
	MatchNotFound  MatchFlag = "not_found"
)

// MatchFlagValues is the closed set accepted by validation.
var MatchFlagValues = []MatchFlag{MatchSame, MatchSimilar, MatchDifferent, MatchReview, MatchNotFound}

// ValidationStatus is the per-field quality verdict.
type ValidationStatus string

const (
	StatusValid    ValidationStatus = "valid"
	StatusWarning  ValidationStatus = "warning"
	StatusInvalid  ValidationStatus = "invalid"
	StatusNotFound ValidationStatus = "not_found"
)

// ValidationStatusValues is the closed set accepted by validation.
var ValidationStatusValues = []ValidationStatus{StatusValid, StatusWarning, StatusInvalid, StatusNotFound}

// statusRank orders statuses by confidence, used when merging identical
// values from two channels.
var statusRank = map[ValidationStatus]int{
	StatusNotFound: 0,
	StatusInvalid:  1,
	StatusWarning:  2,
	StatusValid:    3,
}

// HigherConfidence returns the more confident of two statuses.
func HigherConfidence(a, b ValidationStatus) ValidationStatus {
	if statusRank[a] >= statusRank[b] {
		return a
	}
	return b
}

// Assessment is the quality block attached to every field.
type Assessment struct {
	Score  int              `json:"score"`
	Status ValidationStatus `json:"status"`
	Notes  string           `json:"notes"`
}

// FieldResult is the enhanced per-field structure.
type FieldResult struct {
	ExtractedValue string     `json:"extracted_value"`
	MatchFlag      MatchFlag  `json:"match_flag"`
	Validation     Assessment `json:"validation"`
}

// NotFoundField returns the sentinel triple for an absent field.
func NotFoundField() FieldResult {
	return FieldResult{
		ExtractedValue: NotFound,
		MatchFlag:      MatchNotFound,
		Validation:     Assessment{Score: 0, Status: StatusNotFound},
	}
}

// Record maps category name -> field name -> FieldResult. It is the canonical
// output of the extraction subsystem.
type Record map[string]map[string]FieldResult

// Field is one schema entry with its prompt definition.
type Field struct {
	Name       string
	Definition string
}

// Category is an ordered group of fields.
type Category struct {
	Name   string
	Fields []Field
}

// Catalog is the canonical metadata schema in document order.
var Catalog = []Category{
	{
		Name: "Org Details",
		Fields: []Field{
			{"Organization Name", "Full legal name of the contracting organization (parent company/business entity). If a brand is mentioned elsewhere in the document, map that brand to Organization Name; otherwise use the primary contracting legal entity name."},
		},
	},
	{
		Name: "Contract Lifecycle",
		Fields: []Field{
			{"Party A", "Name of the first party to the agreement (typically the client or service recipient). Full legal entity name as stated in the contract."},
			{"Party B", "Name of the second party to the agreement (typically the vendor or service provider). Full legal entity name as stated in the contract."},
			{"Execution Date", "Date when both parties have signed the agreement. Format: ISO yyyy-mm-dd."},
			{"Effective Date", "Date the agreement becomes legally effective (may differ from execution). Format: ISO yyyy-mm-dd."},
			{"Expiration / Termination Date", "Date the agreement expires or terminates unless renewed. Format: ISO yyyy-mm-dd, or 'Evergreen' if it auto-renews."},
			{"Authorized Signatory - Party A", "Name and designation of the individual authorized to sign on behalf of Party A (e.g. John Doe, VP of Operations). Extract from the signature page or execution section."},
			{"Authorized Signatory - Party B", "Name and designation of the individual authorized to sign on behalf of Party B. Extract from the signature page or execution section."},
		},
	},
	{
		Name: "Business Terms",
		Fields: []Field{
			{"Document Type", "Type of agreement as stated by the title or heading: 'MSA' for Master/Professional Services Agreement, 'NDA' for Non-Disclosure Agreement. If both elements exist, 'MSA' when commercial terms (pricing, payment, termination) are present."},
			{"Termination Notice Period", "Minimum written notice required to terminate. Normalize to '<number> days' ('1 month' -> '30 days', 'sixty (60) business days' -> '60 days'). Return the primary agreement's notice period."},
		},
	},
	{
		Name: "Commercial Operations",
		Fields: []Field{
			{"Billing Frequency", "How often invoices are issued (e.g. Monthly, Quarterly, Milestone-based, As-invoiced)."},
			{"Payment Terms", "Time allowed for payment after invoice submission, as stated (e.g. Net 30 days from invoice date)."},
			{"Expense Reimbursement Rules", "Terms governing travel, lodging, and other reimbursable expenses, as stated."},
		},
	},
	{
		Name: "Finance Terms",
		Fields: []Field{
			{"Pricing Model Type", "Exactly one of 'Fixed', 'T&M', 'Subscription', or 'Hybrid'. Normalize 'Time and Materials' to 'T&M'. Use 'T&M' when billed by hourly rates; 'Hybrid' for fixed base plus hourly."},
			{"Currency", "Settlement currency, allowlist 'USD' or 'INR'. Infer from symbols ($ -> USD, ₹ -> INR). If absent or outside the allowlist, return 'Not Found'."},
			{"Contract Value", "Total contract value if explicitly stated; strip currency symbols and commas and keep decimals (e.g. '$50,000' -> '50000.00'); otherwise 'Not Found'."},
		},
	},
	{
		Name: "Risk & Compliance",
		Fields: []Field{
			{"Indemnification Clause Reference", "Section heading/number plus a 1-2 sentence excerpt (e.g. Section 12 - Indemnification: Each party agrees to indemnify...)."},
			{"Limitation of Liability Cap", "Maximum financial liability for either party, as stated."},
			{"Insurance Requirements", "Types and minimum coverage levels required, as stated."},
			{"Warranties / Disclaimers", "Assurances or disclaimers related to service performance or quality, as stated."},
		},
	},
	{
		Name: "Legal Terms",
		Fields: []Field{
			{"Governing Law", "Jurisdiction whose laws govern the agreement, including venue/court location if specified."},
			{"Confidentiality Clause Reference", "Clause title/number and a brief excerpt describing confidentiality obligations; 'Not Found' if no explicit clause exists."},
			{"Force Majeure Clause Reference", "Clause title/number and a short excerpt describing relief due to extraordinary events; 'Not Found' if no explicit clause exists."},
		},
	},
}

// FieldCount returns the total number of schema fields.
func FieldCount() int {
	n := 0
	for _, c := range Catalog {
		n += len(c.Fields)
	}
	return n
}

// validMatchFlag reports membership in the closed match-flag set.
func validMatchFlag(f MatchFlag) bool {
	for _, v := range MatchFlagValues {
		if v == f {
			return true
		}
	}
	return false
}

// validStatus reports membership in the closed validation-status set.
func validStatus(s ValidationStatus) bool {
	for _, v := range ValidationStatusValues {
		if v == s {
			return true
		}
	}
	return false
}
