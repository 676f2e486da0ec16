package usecases

import (
	"context"

	"github.com/google/uuid"

	"github.com/sophialabs/mimicry/internal/domain/audit"
)

// MaxAuditBody caps the request and response bodies kept per entry.
const MaxAuditBody = 64 << 10

// Auditor persists audit entries in the background.
type Auditor struct {
	sink audit.Sink
	bg   *Background
}

// NewAuditor creates an Auditor writing to sink.
func NewAuditor(sink audit.Sink, bg *Background) *Auditor {
	return &Auditor{sink: sink, bg: bg}
}

// Submit stores e asynchronously. It never blocks on the sink.
func (a *Auditor) Submit(e audit.Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Body = truncate(e.Body)
	e.ResponseBody = truncate(e.ResponseBody)
	a.bg.Go("audit", func(ctx context.Context) error {
		return a.sink.Append(ctx, e)
	})
}

func truncate(s string) string {
	if len(s) <= MaxAuditBody {
		return s
	}
	return s[:MaxAuditBody]
}
