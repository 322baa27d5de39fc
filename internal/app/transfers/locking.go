package transfers

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/djamrezki/instant-payment-service/internal/domain"
)

// lockAccounts locks both parties in ascending IBAN order, each distinct IBAN
// once, and hands the snapshots back by role.
func lockAccounts(ctx context.Context, accounts AccountStore, debtorIBAN, creditorIBAN string) (debtor, creditor domain.Account, err error) {
	ibans := []string{debtorIBAN, creditorIBAN}
	slices.Sort(ibans)
	ibans = slices.Compact(ibans)

	locked := make(map[string]domain.Account, len(ibans))
	for _, iban := range ibans {
		account, err := accounts.LockForUpdate(ctx, iban)
		if err != nil {
			if errors.Is(err, domain.ErrAccountNotFound) {
				return domain.Account{}, domain.Account{}, domain.Reject(domain.FailureAccountNotFound, "Account not found: "+iban)
			}
			return domain.Account{}, domain.Account{}, fmt.Errorf("failed to lock account %s: %w", iban, err)
		}
		locked[iban] = account
	}

	return locked[debtorIBAN], locked[creditorIBAN], nil
}
