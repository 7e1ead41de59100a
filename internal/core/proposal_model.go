package core

// ProposalLine is a single debit or credit line of an assistant-drafted entry.
type ProposalLine struct {
	AccountCode string `json:"account_code" jsonschema_description:"The exact account code from the provided chart of accounts"`
	IsDebit     bool   `json:"is_debit" jsonschema_description:"True if this line is a debit, false for credit"`
	Amount      string `json:"amount" jsonschema_description:"The positive amount of this line as a decimal string"`
	Memo        string `json:"memo" jsonschema_description:"Optional short line description"`
}

// Proposal is the journal entry draft returned by the assistant. It is never stored.
type Proposal struct {
	Description string         `json:"description" jsonschema_description:"A brief description of the business event"`
	Date        string         `json:"date" jsonschema_description:"The entry date in YYYY-MM-DD format. Use today's date if unspecified."`
	Confidence  float64        `json:"confidence" jsonschema_description:"Confidence score between 0.0 and 1.0"`
	Reasoning   string         `json:"reasoning" jsonschema_description:"Explanation for the proposed journal entry"`
	Lines       []ProposalLine `json:"lines" jsonschema_description:"Debit and credit lines; total debits must equal total credits"`
}

// ClarificationRequest is returned when the narration lacks critical information.
type ClarificationRequest struct {
	Message string `json:"message" jsonschema_description:"A question asking the user for the missing details"`
}

// AgentResponse holds exactly one of a proposal or a clarification request.
type AgentResponse struct {
	IsClarificationRequest bool                  `json:"is_clarification_request" jsonschema_description:"Set to true ONLY if you lack enough information to create a confident proposal."`
	Clarification          *ClarificationRequest `json:"clarification,omitempty" jsonschema_description:"Required if is_clarification_request is true."`
	Proposal               *Proposal             `json:"proposal,omitempty" jsonschema_description:"Required if is_clarification_request is false."`
}
