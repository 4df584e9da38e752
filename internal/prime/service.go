package prime

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/store"
	"privacy-relay-settlement/internal/transport"
	"privacy-relay-settlement/internal/withdrawal"

	"github.com/coinbase-samples/prime-sdk-go/client"
	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/coinbase-samples/prime-sdk-go/portfolios"
	"github.com/coinbase-samples/prime-sdk-go/wallets"
	"go.uber.org/zap"
)

const (
	defaultPortfolioName = "Default Portfolio"
	defaultWalletType    = "TRADING"
)

var _ withdrawal.DestinationResolver = (*Service)(nil)

// primeAPI is the subset of Prime calls the resolver needs.
type primeAPI interface {
	FindPortfolio(ctx context.Context, name string) (string, error)
	FindWallet(ctx context.Context, portfolioId, walletType, symbol string) (string, error)
	CreateAddress(ctx context.Context, portfolioId, walletId, network string) (string, error)
}

// Service resolves the operator's Coinbase Prime deposit address for each
// payout currency. Addresses are created once per process and cached.
type Service struct {
	api           primeAPI
	portfolioName string
	walletType    string
	networks      map[string]string

	mu          sync.Mutex
	portfolioId string
	addresses   map[string]string
}

// NewService creates a resolver backed by the Prime REST API.
func NewService(cfg models.PrimeConfig) (*Service, error) {
	if cfg.AccessKey == "" || cfg.Passphrase == "" || cfg.SigningKey == "" {
		return nil, fmt.Errorf("missing required Prime API credentials: PRIME_ACCESS_KEY, PRIME_PASSPHRASE, PRIME_SIGNING_KEY")
	}

	httpClient, err := transport.NewHTTPClient(transport.Options{})
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	restClient := client.NewRestClient(&credentials.Credentials{
		AccessKey:  cfg.AccessKey,
		Passphrase: cfg.Passphrase,
		SigningKey: cfg.SigningKey,
	}, httpClient)

	return newService(&sdkAPI{
		portfoliosSvc: portfolios.NewPortfoliosService(restClient),
		walletsSvc:    wallets.NewWalletsService(restClient),
	}, cfg), nil
}

func newService(api primeAPI, cfg models.PrimeConfig) *Service {
	if cfg.PortfolioName == "" {
		cfg.PortfolioName = defaultPortfolioName
	}
	if cfg.WalletType == "" {
		cfg.WalletType = defaultWalletType
	}
	networks := make(map[string]string, len(cfg.Networks))
	for symbol, network := range cfg.Networks {
		networks[strings.ToUpper(symbol)] = network
	}
	return &Service{
		api:           api,
		portfolioName: cfg.PortfolioName,
		walletType:    cfg.WalletType,
		networks:      networks,
		addresses:     make(map[string]string),
	}
}

// Destination returns the Prime deposit address for currency.
func (s *Service) Destination(ctx context.Context, currency string) (string, error) {
	symbol := strings.ToUpper(currency)

	s.mu.Lock()
	defer s.mu.Unlock()

	if addr, ok := s.addresses[symbol]; ok {
		return addr, nil
	}

	network, ok := s.networks[symbol]
	if !ok {
		return "", fmt.Errorf("%w: no Prime network configured for %s", store.ErrValidation, symbol)
	}

	if s.portfolioId == "" {
		id, err := s.api.FindPortfolio(ctx, s.portfolioName)
		if err != nil {
			return "", err
		}
		s.portfolioId = id
		zap.L().Info("Using Prime portfolio",
			zap.String("name", s.portfolioName),
			zap.String("id", id))
	}

	walletId, err := s.api.FindWallet(ctx, s.portfolioId, s.walletType, symbol)
	if err != nil {
		return "", err
	}

	addr, err := s.api.CreateAddress(ctx, s.portfolioId, walletId, network)
	if err != nil {
		return "", err
	}

	zap.L().Info("Resolved settlement destination",
		zap.String("symbol", symbol),
		zap.String("wallet_id", walletId),
		zap.String("network", network),
		zap.String("address", addr))

	s.addresses[symbol] = addr
	return addr, nil
}

// sdkAPI calls the Prime REST API through prime-sdk-go.
type sdkAPI struct {
	portfoliosSvc portfolios.PortfoliosService
	walletsSvc    wallets.WalletsService
}

func (a *sdkAPI) FindPortfolio(ctx context.Context, name string) (string, error) {
	response, err := a.portfoliosSvc.ListPortfolios(ctx, &portfolios.ListPortfoliosRequest{})
	if err != nil {
		return "", fmt.Errorf("%w: unable to list portfolios: %v", store.ErrServiceUnavailable, err)
	}

	for _, p := range response.Portfolios {
		if p.Name == name {
			return p.Id, nil
		}
	}
	return "", fmt.Errorf("%w: portfolio %q", store.ErrNotFound, name)
}

func (a *sdkAPI) FindWallet(ctx context.Context, portfolioId, walletType, symbol string) (string, error) {
	response, err := a.walletsSvc.ListWallets(ctx, &wallets.ListWalletsRequest{
		PortfolioId: portfolioId,
		Type:        walletType,
		Symbols:     []string{symbol},
	})
	if err != nil {
		return "", fmt.Errorf("%w: unable to list wallets: %v", store.ErrServiceUnavailable, err)
	}

	for _, w := range response.Wallets {
		if strings.EqualFold(w.Symbol, symbol) {
			return w.Id, nil
		}
	}
	return "", fmt.Errorf("%w: %s wallet for %s", store.ErrNotFound, walletType, symbol)
}

func (a *sdkAPI) CreateAddress(ctx context.Context, portfolioId, walletId, network string) (string, error) {
	response, err := a.walletsSvc.CreateWalletAddress(ctx, &wallets.CreateWalletAddressRequest{
		PortfolioId: portfolioId,
		WalletId:    walletId,
		NetworkId:   network,
	})
	if err != nil {
		return "", fmt.Errorf("%w: unable to create wallet address: %v", store.ErrServiceUnavailable, err)
	}
	return response.Address, nil
}
