package syncer

import (
	"github.com/google/uuid"

	"github.com/costlens/backend/internal/model"
	"github.com/costlens/backend/internal/syncerror"
)

// BatchStatus summarizes a fan-out sync run.
type BatchStatus string

const (
	StatusSuccess BatchStatus = "success"
	StatusPartial BatchStatus = "partial"
	StatusFailure BatchStatus = "failure"
)

// AccountOutcome is the settled result of one account's sync task.
type AccountOutcome struct {
	AccountID uuid.UUID          `json:"account_id"`
	Provider  model.ProviderType `json:"provider"`
	Alias     string             `json:"alias"`
	Error     string             `json:"error,omitempty"`
	Hint      string             `json:"hint,omitempty"`
	Retryable bool               `json:"retryable,omitempty"`

	err error
}

// Err returns the underlying error, nil on success.
func (o AccountOutcome) Err() error { return o.err }

func newOutcome(account *model.ProviderAccount, err error) AccountOutcome {
	o := AccountOutcome{
		AccountID: account.ID,
		Provider:  account.ProviderType,
		Alias:     account.Alias,
		err:       err,
	}
	if err != nil {
		o.Error = err.Error()
		o.Hint = syncerror.HintOf(err)
		o.Retryable = syncerror.IsRetryable(err)
	}
	return o
}

// BatchResult is the aggregate of a SyncAll run. Status is success when every
// account settled cleanly, failure when none did, partial otherwise.
type BatchResult struct {
	Status   BatchStatus      `json:"status"`
	Synced   int              `json:"synced"`
	Failed   int              `json:"failed"`
	Outcomes []AccountOutcome `json:"outcomes"`
}

func aggregate(outcomes []AccountOutcome) *BatchResult {
	result := &BatchResult{Outcomes: outcomes}
	for _, o := range outcomes {
		if o.err != nil {
			result.Failed++
		} else {
			result.Synced++
		}
	}
	switch {
	case result.Failed == 0:
		result.Status = StatusSuccess
	case result.Synced == 0:
		result.Status = StatusFailure
	default:
		result.Status = StatusPartial
	}
	return result
}
