package core

import (
	"context"
	"fmt"
	"time"
)

// Document type codes used as number prefixes.
const (
	DocJournalEntry = "JE"
	DocRevaluation  = "REV"
	DocSalesOrder   = "SO"
	DocInvoice      = "INV"
	DocQuotation    = "QT"
	DocPurchase     = "PO"
	DocTicket       = "TKT"
	DocDSAR         = "DSAR"
	DocPayroll      = "PAY"
	DocSourcing     = "SRC"
	DocApproval     = "APR"
)

// NextDocumentNumber assigns the next gapless number for typeCode in the year of
// date, formatted as TYPE-YYYY-00001. It must run inside the transaction that
// stores the document: the sequence row stays locked until that transaction ends,
// so a rollback releases the number instead of leaving a gap.
func NextDocumentNumber(ctx context.Context, q Querier, typeCode string, date time.Time) (string, error) {
	year := date.Year()
	var lastNumber int64
	err := q.QueryRow(ctx, `
		INSERT INTO document_sequences (type_code, financial_year, last_number)
		VALUES ($1, $2, 1)
		ON CONFLICT (type_code, financial_year)
		DO UPDATE SET last_number = document_sequences.last_number + 1
		RETURNING last_number`,
		typeCode, year,
	).Scan(&lastNumber)
	if err != nil {
		return "", fmt.Errorf("failed to generate gapless sequence number: %w", err)
	}
	return FormatDocumentNumber(typeCode, year, lastNumber), nil
}

func FormatDocumentNumber(typeCode string, year int, n int64) string {
	return fmt.Sprintf("%s-%d-%05d", typeCode, year, n)
}
