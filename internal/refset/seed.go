package refset

// DefaultExamples returns the built-in labeled reference queries. Deployments
// extend or replace these with examples mined from their own member support
// transcripts.
func DefaultExamples() []Example {
	return []Example{
		// balance
		{ID: "bal-001", Topic: "balance", Text: "how much money is in my retirement account"},
		{ID: "bal-002", Topic: "balance", Text: "what is my current account balance"},
		{ID: "bal-003", Topic: "balance", Text: "show me my total savings across all my funds"},
		{ID: "bal-004", Topic: "balance", Text: "how much have I saved so far"},

		// contributions
		{ID: "con-001", Topic: "contributions", Text: "how much did I contribute last year"},
		{ID: "con-002", Topic: "contributions", Text: "what is the maximum I can put in this year"},
		{ID: "con-003", Topic: "contributions", Text: "does my employer match my contributions"},
		{ID: "con-004", Topic: "contributions", Text: "can I increase my monthly deposit amount"},

		// tax
		{ID: "tax-001", Topic: "tax", Text: "how are my withdrawals taxed in retirement"},
		{ID: "tax-002", Topic: "tax", Text: "what tax deduction do I get for contributing"},
		{ID: "tax-003", Topic: "tax", Text: "will I owe taxes on my investment gains"},
		{ID: "tax-004", Topic: "tax", Text: "is my pension income taxable"},

		// early_withdrawal
		{ID: "ew-001", Topic: "early_withdrawal", Text: "can I take money out before I retire"},
		{ID: "ew-002", Topic: "early_withdrawal", Text: "what is the penalty for withdrawing early"},
		{ID: "ew-003", Topic: "early_withdrawal", Text: "I need to access my funds for a hardship"},
		{ID: "ew-004", Topic: "early_withdrawal", Text: "can I borrow against my retirement savings"},

		// retirement_projection
		{ID: "rp-001", Topic: "retirement_projection", Text: "how much will I have when I retire"},
		{ID: "rp-002", Topic: "retirement_projection", Text: "what will my monthly income be at age 67"},
		{ID: "rp-003", Topic: "retirement_projection", Text: "am I on track for a comfortable retirement"},
		{ID: "rp-004", Topic: "retirement_projection", Text: "project my balance at retirement age"},

		// eligibility
		{ID: "el-001", Topic: "eligibility", Text: "when can I start taking my pension"},
		{ID: "el-002", Topic: "eligibility", Text: "am I eligible to join the company scheme"},
		{ID: "el-003", Topic: "eligibility", Text: "what age do I qualify for full benefits"},
		{ID: "el-004", Topic: "eligibility", Text: "do part time employees qualify for the plan"},
	}
}
