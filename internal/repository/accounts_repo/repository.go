package accounts_repo

import (
	"context"

	"github.com/djamrezki/instant-payment-service/internal/domain"
)

type AccountRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, account domain.Account) error
	GetByIBANTx(ctx context.Context, querier domain.Querier, iban string) (domain.Account, error)
	GetByIBANForUpdateTx(ctx context.Context, querier domain.Querier, iban string) (domain.Account, error)
	UpdateTx(ctx context.Context, querier domain.Querier, account domain.Account) (domain.Account, error)
}
