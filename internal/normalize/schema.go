package normalize

import "github.com/veridoc/harrier/internal/domain"

// FieldSpec declares one canonical field of a document type: its parsed kind,
// whether it is critical for the missing-fields scorer, and the
// extraction-source synonyms that collapse onto it. Synonyms are tried in
// declared order; the first non-empty value wins. The canonical name itself
// is always tried first.
type FieldSpec struct {
	Name     string
	Kind     domain.FieldKind
	Critical bool
	Synonyms []string
}

// Schema is the declared canonical schema for one document type. Downstream
// components never see untyped extraction data; everything is bound here.
type Schema struct {
	Type   domain.DocumentType
	Fields []FieldSpec
}

// CriticalFields returns the names of the schema's critical fields.
func (s *Schema) CriticalFields() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Critical {
			out = append(out, f.Name)
		}
	}
	return out
}

// Spec returns the field spec by canonical name.
func (s *Schema) Spec(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Schemas returns the canonical schema set, keyed by document type.
func Schemas() map[domain.DocumentType]*Schema {
	return map[domain.DocumentType]*Schema{
		domain.DocTypeCheck:      checkSchema(),
		domain.DocTypeMoneyOrder: moneyOrderSchema(),
		domain.DocTypePaystub:    paystubSchema(),
	}
}

func checkSchema() *Schema {
	return &Schema{
		Type: domain.DocTypeCheck,
		Fields: []FieldSpec{
			{
				Name: domain.FieldBankName, Kind: domain.FieldKindText, Critical: true,
				Synonyms: []string{"bank", "bank_text", "institution", "institution_name"},
			},
			{
				Name: domain.FieldPayee, Kind: domain.FieldKindText, Critical: true,
				Synonyms: []string{"pay_to", "pay_to_the_order_of", "payee_name", "recipient"},
			},
			{
				Name: domain.FieldAmount, Kind: domain.FieldKindMoney, Critical: true,
				Synonyms: []string{"amt", "amount_numeric", "check_amount", "total", "courtesy_amount"},
			},
			{
				Name: domain.FieldDate, Kind: domain.FieldKindDate, Critical: true,
				Synonyms: []string{"check_date", "issue_date", "dated"},
			},
			{
				Name: domain.FieldEntityName, Kind: domain.FieldKindText,
				Synonyms: []string{"account_holder", "payer", "drawer", "customer_name", "from"},
			},
			{
				Name: domain.FieldAccountNumber, Kind: domain.FieldKindText,
				Synonyms: []string{"account_no", "acct_number", "account"},
			},
			{
				Name: domain.FieldRoutingNumber, Kind: domain.FieldKindText,
				Synonyms: []string{"routing_no", "routing", "aba_number"},
			},
			{
				Name: domain.FieldDocumentNumber, Kind: domain.FieldKindText,
				Synonyms: []string{"check_number", "check_no", "number", "doc_number"},
			},
			{
				Name: domain.FieldSignature, Kind: domain.FieldKindBool,
				Synonyms: []string{"signature", "has_signature", "signature_detected", "signed"},
			},
			{
				Name: domain.FieldMemo, Kind: domain.FieldKindText,
				Synonyms: []string{"memo_line", "note", "for"},
			},
		},
	}
}

func moneyOrderSchema() *Schema {
	return &Schema{
		Type: domain.DocTypeMoneyOrder,
		Fields: []FieldSpec{
			{
				Name: domain.FieldIssuer, Kind: domain.FieldKindText, Critical: true,
				Synonyms: []string{"issuer_name", "issuing_agent", "agent", "vendor"},
			},
			{
				Name: domain.FieldPayee, Kind: domain.FieldKindText, Critical: true,
				Synonyms: []string{"pay_to", "pay_to_the_order_of", "payee_name", "recipient"},
			},
			{
				Name: domain.FieldAmount, Kind: domain.FieldKindMoney, Critical: true,
				Synonyms: []string{"amt", "amount_numeric", "total", "face_value"},
			},
			{
				Name: domain.FieldDate, Kind: domain.FieldKindDate, Critical: true,
				Synonyms: []string{"issue_date", "purchase_date", "dated"},
			},
			{
				Name: domain.FieldSerialNumber, Kind: domain.FieldKindText, Critical: true,
				Synonyms: []string{"serial", "serial_no", "control_number"},
			},
			{
				Name: domain.FieldEntityName, Kind: domain.FieldKindText,
				Synonyms: []string{"purchaser", "sender", "remitter", "from"},
			},
			{
				Name: domain.FieldSignature, Kind: domain.FieldKindBool,
				Synonyms: []string{"signature", "has_signature", "signature_detected", "purchaser_signature"},
			},
		},
	}
}

func paystubSchema() *Schema {
	return &Schema{
		Type: domain.DocTypePaystub,
		Fields: []FieldSpec{
			{
				Name: domain.FieldEmployer, Kind: domain.FieldKindText, Critical: true,
				Synonyms: []string{"employer_name", "company", "company_name"},
			},
			{
				Name: domain.FieldEmployee, Kind: domain.FieldKindText, Critical: true,
				Synonyms: []string{"employee_name", "worker", "staff_name"},
			},
			{
				Name: domain.FieldGrossPay, Kind: domain.FieldKindMoney, Critical: true,
				Synonyms: []string{"gross", "gross_earnings", "total_gross"},
			},
			{
				Name: domain.FieldNetPay, Kind: domain.FieldKindMoney, Critical: true,
				Synonyms: []string{"net", "net_earnings", "take_home", "net_amount"},
			},
			{
				Name: domain.FieldDate, Kind: domain.FieldKindDate, Critical: true,
				Synonyms: []string{"pay_date", "payment_date", "issue_date"},
			},
			{
				Name: domain.FieldPayPeriodStart, Kind: domain.FieldKindDate,
				Synonyms: []string{"period_start", "pay_period_begin", "period_beginning"},
			},
			{
				Name: domain.FieldPayPeriodEnd, Kind: domain.FieldKindDate,
				Synonyms: []string{"period_end", "pay_period_ending", "period_ending"},
			},
			{
				Name: domain.FieldYTDGross, Kind: domain.FieldKindMoney,
				Synonyms: []string{"ytd", "year_to_date", "ytd_earnings"},
			},
			{
				Name: domain.FieldEntityName, Kind: domain.FieldKindText,
				Synonyms: []string{"employee_name", "employee"},
			},
			{
				Name: domain.FieldSignature, Kind: domain.FieldKindBool,
				Synonyms: []string{"authorized", "authorization", "verified"},
			},
		},
	}
}
